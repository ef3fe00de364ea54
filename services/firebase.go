package services

import (
	"context"
	"fmt"
	"time"

	"coldwatch/config"
	"coldwatch/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FirebaseStore implements DeviceRegistry, ReadingStore and UserDirectory
// on the Firebase Realtime Database. Layout:
//
//	devices/<deviceID>          device record, ingestion key included
//	readings/<deviceID>/<push>  append-only samples
//	users/<tenantID>/<userID>   directory snapshots, written by the
//	                            management plane
//
// SaveDevice runs as an RTDB transaction so the version compare-and-swap is
// atomic at the storage layer.
type FirebaseStore struct {
	client *db.Client
	config *config.Config
	logger *zap.Logger
}

func NewFirebaseStore(cfg *config.Config, logger *zap.Logger) (*FirebaseStore, error) {
	ctx := context.Background()

	serviceAccountJSON := []byte(cfg.FirebaseServiceAccountJSON)

	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
	}

	opt := option.WithCredentialsJSON(serviceAccountJSON)
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	fs := &FirebaseStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	if err := fs.testConnection(); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, fmt.Errorf("firebase connection test failed: %w", err)
	}

	return fs, nil
}

// testConnection tests Firebase connection with retry logic
func (fs *FirebaseStore) testConnection() error {
	ctx := context.Background()
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		fs.logger.Info("Testing Firebase connection",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries))

		ref := fs.client.NewRef("/")
		var data interface{}
		err := ref.Get(ctx, &data)

		if err == nil {
			fs.logger.Info("Firebase connection successful")
			return nil
		}

		fs.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

func (fs *FirebaseStore) GetDeviceByKey(ctx context.Context, key string) (*models.Device, error) {
	query := fs.client.NewRef("devices").OrderByChild("key").EqualTo(key).LimitToFirst(1)

	var matches map[string]*models.Device
	if err := query.Get(ctx, &matches); err != nil {
		return nil, fmt.Errorf("%w: query device by key: %v", ErrStoreUnavailable, err)
	}

	for _, device := range matches {
		return device, nil
	}
	return nil, fmt.Errorf("%w: unknown device key", ErrDeviceNotFound)
}

func (fs *FirebaseStore) GetDeviceByID(ctx context.Context, id string) (*models.Device, error) {
	var device models.Device
	if err := fs.client.NewRef("devices").Child(id).Get(ctx, &device); err != nil {
		return nil, fmt.Errorf("%w: get device %s: %v", ErrStoreUnavailable, id, err)
	}
	if device.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return &device, nil
}

func (fs *FirebaseStore) ListOnlineDevices(ctx context.Context) ([]*models.Device, error) {
	query := fs.client.NewRef("devices").OrderByChild("is_online").EqualTo(true)

	var matches map[string]*models.Device
	if err := query.Get(ctx, &matches); err != nil {
		return nil, fmt.Errorf("%w: list online devices: %v", ErrStoreUnavailable, err)
	}

	devices := make([]*models.Device, 0, len(matches))
	for _, device := range matches {
		devices = append(devices, device)
	}
	return devices, nil
}

func (fs *FirebaseStore) SaveDevice(ctx context.Context, device *models.Device, expectedVersion int64) error {
	ref := fs.client.NewRef("devices").Child(device.ID)

	updated := device.Clone()
	updated.Version = expectedVersion + 1

	err := ref.Transaction(ctx, func(node db.TransactionNode) (interface{}, error) {
		var current models.Device
		if err := node.Unmarshal(&current); err != nil {
			return nil, err
		}
		if current.ID == "" {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, device.ID)
		}
		if current.Version != expectedVersion {
			return nil, fmt.Errorf("%w: device %s at version %d, expected %d",
				ErrConflict, device.ID, current.Version, expectedVersion)
		}
		return updated, nil
	})
	if err != nil {
		return err
	}

	device.Version = updated.Version
	return nil
}

func (fs *FirebaseStore) AppendReading(ctx context.Context, reading *models.Reading) error {
	ref := fs.client.NewRef("readings").Child(reading.DeviceID)
	if _, err := ref.Push(ctx, reading); err != nil {
		return fmt.Errorf("%w: push reading for device %s: %v",
			ErrStoreUnavailable, reading.DeviceID, err)
	}

	fs.logger.Debug("Reading appended",
		zap.String("device_id", reading.DeviceID),
		zap.Float64("temperature", reading.Temperature))
	return nil
}

func (fs *FirebaseStore) ListUsersByTenant(ctx context.Context, tenantID string) ([]*models.User, error) {
	var matches map[string]*models.User
	if err := fs.client.NewRef("users").Child(tenantID).Get(ctx, &matches); err != nil {
		return nil, fmt.Errorf("%w: list users for tenant %s: %v",
			ErrStoreUnavailable, tenantID, err)
	}

	users := make([]*models.User, 0, len(matches))
	for _, user := range matches {
		users = append(users, user)
	}
	return users, nil
}
