package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"coldwatch/models"

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// storedump prints the device registry and recent readings straight from the
// Realtime Database, for debugging a deployment without going through the
// service.

func main() {
	// Load environment variables
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON")
	dbURL := os.Getenv("FIREBASE_DB_URL")

	if serviceAccountJSON == "" {
		log.Fatal("FIREBASE_SERVICE_ACCOUNT_JSON environment variable is not set")
	}
	if dbURL == "" {
		log.Fatal("FIREBASE_DB_URL environment variable is not set")
	}

	conf := &firebase.Config{
		DatabaseURL: dbURL,
	}

	opt := option.WithCredentialsJSON([]byte(serviceAccountJSON))
	app, err := firebase.NewApp(context.Background(), conf, opt)
	if err != nil {
		log.Fatalf("Error initializing Firebase app: %v", err)
	}

	client, err := app.Database(context.Background())
	if err != nil {
		log.Fatalf("Error getting database client: %v", err)
	}

	// Devices
	var devices map[string]models.Device
	err = client.NewRef("devices").Get(context.Background(), &devices)
	if err != nil {
		log.Fatalf("Error reading devices: %v", err)
	}

	fmt.Printf("Devices found: %d\n", len(devices))
	for id, device := range devices {
		fmt.Printf("Device: %s\n", id)
		fmt.Printf("  Name: %s  Tenant: %s\n", device.Name, device.TenantID)
		fmt.Printf("  Status: %s  Online: %t  Version: %d\n", device.Status, device.IsOnline, device.Version)
		fmt.Printf("  Range: [%.1f, %.1f]  LastSeen: %s\n",
			device.Settings.TempMin, device.Settings.TempMax, device.LastSeen)
		if device.LastAlertSent != nil {
			fmt.Printf("  LastAlertSent: %s\n", *device.LastAlertSent)
		}
		fmt.Println("---")
	}

	// Readings per device
	for id := range devices {
		var readings map[string]models.Reading
		err = client.NewRef("readings").Child(id).Get(context.Background(), &readings)
		if err != nil {
			log.Printf("Error reading samples for device %s: %v", id, err)
			continue
		}

		fmt.Printf("Readings for %s: %d\n", id, len(readings))
		for key, reading := range readings {
			fmt.Printf("  %s: %.2f°C @ %s\n", key, reading.Temperature, reading.Timestamp)
		}
	}
}
