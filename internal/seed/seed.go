// Package seed bootstraps the first admin accounts and the department list
// from a yaml file, so a fresh deployment is usable without manual SQL.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"

	"campuscms/internal/crypto"
	"campuscms/internal/model"
	"campuscms/internal/repository"
)

type File struct {
	Admins      []Admin  `yaml:"admins"`
	Departments []string `yaml:"departments"`
}

type Admin struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	DisplayName string `yaml:"display_name"`
}

func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("parse seed file: %w", err)
	}
	return file, nil
}

// Apply is idempotent: accounts and departments that already exist are left
// untouched.
func Apply(ctx context.Context, store *repository.Store, file File) error {
	now := time.Now().UTC()

	for _, name := range file.Departments {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if err := store.EnsureDepartment(ctx, uuid.NewString(), name); err != nil {
			return fmt.Errorf("seed department %q: %w", name, err)
		}
	}

	for _, admin := range file.Admins {
		email := strings.TrimSpace(strings.ToLower(admin.Email))
		if email == "" || admin.Password == "" {
			return fmt.Errorf("seed admin %q: email and password are required", admin.Email)
		}

		_, err := store.GetUserByEmail(ctx, email)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		hash, err := crypto.HashPassword(admin.Password)
		if err != nil {
			return err
		}
		user := model.User{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		profile := model.Profile{
			UserID:      user.ID,
			DisplayName: admin.DisplayName,
			IsActive:    true,
			IsVerified:  true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if profile.DisplayName == "" {
			profile.DisplayName = email
		}
		if err := store.CreateUserWithRole(ctx, user, model.RoleAdmin, profile); err != nil {
			return fmt.Errorf("seed admin %q: %w", email, err)
		}
	}
	return nil
}
