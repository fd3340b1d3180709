package app

import (
	"context"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
)

func (a *App) Peer(ctx context.Context, id string) (*models.User, error) {
	if _, err := a.self(); err != nil {
		return nil, err
	}
	return a.gw.GetUser(ctx, id)
}

// PeerPresence prefers fresh realtime presence over what the REST API
// reported for user.
func (a *App) PeerPresence(user models.User) (bool, *time.Time) {
	return a.shared.Presence().Resolve(user)
}

func (a *App) Profile(ctx context.Context) (*models.User, error) {
	self, err := a.self()
	if err != nil {
		return nil, err
	}
	return a.gw.GetProfile(ctx, self.ID)
}

// UpdateProfile saves profile fields and mirrors the result into the stored
// identity.
func (a *App) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (*models.User, error) {
	self, err := a.self()
	if err != nil {
		return nil, err
	}
	user, err := a.gw.UpdateProfile(ctx, self.ID, update)
	if err != nil {
		return nil, err
	}
	return user, a.remember(user)
}

func (a *App) ChangePassword(ctx context.Context, current, next, confirm string) error {
	self, err := a.self()
	if err != nil {
		return err
	}
	return a.gw.ChangePassword(ctx, self.ID, models.PasswordChange{CurrentPassword: current, NewPassword: next}, confirm)
}

func (a *App) UploadAvatar(ctx context.Context, path string) (*models.User, error) {
	self, err := a.self()
	if err != nil {
		return nil, err
	}
	user, err := a.gw.UploadAvatarFile(ctx, self.ID, path)
	if err != nil {
		return nil, err
	}
	return user, a.remember(user)
}

func (a *App) DeleteAvatar(ctx context.Context) error {
	self, err := a.self()
	if err != nil {
		return err
	}
	if err := a.gw.DeleteAvatar(ctx, self.ID); err != nil {
		return err
	}
	return a.store.UpdateIdentity(func(id *models.Identity) { id.AvatarURL = "" })
}

func (a *App) remember(user *models.User) error {
	return a.store.UpdateIdentity(func(id *models.Identity) {
		fresh := user.Identity()
		fresh.ID = id.ID
		*id = fresh
	})
}
