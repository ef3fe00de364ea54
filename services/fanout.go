package services

import (
	"context"
	"fmt"

	"coldwatch/models"
)

// RecipientResolver computes the exact set of users to notify for an alert
// on a device: every admin of the tenant, plus every viewer whose explicit
// device binding includes the device. Deduplicated by user ID.
type RecipientResolver struct {
	directory UserDirectory
}

func NewRecipientResolver(directory UserDirectory) *RecipientResolver {
	return &RecipientResolver{directory: directory}
}

// ResolveAlertRecipients returns the recipients for an alert on the given
// device, scoped to its tenant.
func (r *RecipientResolver) ResolveAlertRecipients(ctx context.Context, tenantID, deviceID string) ([]*models.User, error) {
	users, err := r.directory.ListUsersByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users for tenant %s: %w", tenantID, err)
	}

	seen := make(map[string]bool, len(users))
	recipients := make([]*models.User, 0, len(users))

	for _, user := range users {
		if seen[user.ID] {
			continue
		}
		if user.Role == models.RoleAdmin || viewerBoundTo(user, deviceID) {
			seen[user.ID] = true
			recipients = append(recipients, user)
		}
	}

	return recipients, nil
}

func viewerBoundTo(user *models.User, deviceID string) bool {
	if user.Role != models.RoleViewer {
		return false
	}
	for _, id := range user.DeviceIDs {
		if id == deviceID {
			return true
		}
	}
	return false
}
