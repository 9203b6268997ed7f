// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/mailauth/internal/models"
	"codeberg.org/oliverandrich/mailauth/internal/repository"
	"codeberg.org/oliverandrich/mailauth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := &models.User{
		Email:        "alice@example.com",
		PasswordHash: "hash",
		IsActive:     true,
	}
	err := repo.CreateUser(ctx, user)

	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.False(t, user.IsVerified)
	assert.True(t, user.IsActive)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	testutil.NewTestUser(t, repo, "alice@example.com", "secret", true)

	err := repo.CreateUser(ctx, &models.User{Email: "alice@example.com"})
	assert.Error(t, err)
}

func TestGetUserByEmail_CaseInsensitive(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", "secret", true)

	found, err := repo.GetUserByEmail(ctx, "Alice@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMarkUserVerified(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", "secret", false)
	require.False(t, user.IsVerified)

	require.NoError(t, repo.MarkUserVerified(ctx, user.ID))

	updated, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsVerified)
}

func TestPromotePendingEmail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", "secret", true)
	require.NoError(t, repo.SetPendingEmail(ctx, user.ID, "new@example.com"))

	staged, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", staged.PendingEmail)
	require.Equal(t, "alice@example.com", staged.Email)

	require.NoError(t, repo.PromotePendingEmail(ctx, user.ID, "new@example.com"))

	promoted, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", promoted.Email)
	assert.Empty(t, promoted.PendingEmail)
}

func TestTouchLastLogin(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", "secret", true)
	require.Nil(t, user.LastLoginAt)

	require.NoError(t, repo.TouchLastLogin(ctx, user.ID))

	updated, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastLoginAt)
}

func TestDeleteUser_CascadesOwnedRecords(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", "secret", true)
	require.NoError(t, repo.CreateVerificationCode(ctx, &models.VerificationCode{
		UserID:    user.ID,
		Purpose:   models.PurposeSignup,
		CodeHash:  "codehash",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}))
	require.NoError(t, repo.CreateAuthToken(ctx, &models.AuthToken{
		UserID:    user.ID,
		TokenHash: "tokenhash",
	}))

	require.NoError(t, repo.DeleteUser(ctx, user.ID))

	_, err := repo.GetVerificationCode(ctx, "codehash", models.PurposeSignup)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetAuthToken(ctx, "tokenhash")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCountUsers(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	testutil.NewTestUser(t, repo, "alice@example.com", "secret", true)
	testutil.NewTestUser(t, repo, "bob@example.com", "secret", false)

	count, err = repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
