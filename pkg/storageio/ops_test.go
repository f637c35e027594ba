package storageio_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/storageio/pkg/storageio"
)

func TestUserLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.svc.GetUser(ctx, "u1", "first@example.com")
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", user.Email)
	assert.False(t, user.TosAccepted)

	user, err = f.svc.GetUser(ctx, "u1", "second@example.com")
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", user.Email, "hint only applies on creation")

	require.NoError(t, f.svc.SetUserEmail(ctx, "u1", "new@example.com"))
	require.NoError(t, f.svc.SetUserName(ctx, "u1", "Ada"))
	require.NoError(t, f.svc.SetTosAccepted(ctx, "u1"))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.svc.SetUserSessionID(ctx, "u1", "sess-1"))
	require.NoError(t, f.svc.StoreUserSettings(ctx, "u1", `{"theme":"dark"}`))

	user, err = f.svc.GetUser(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, "Ada", user.Name)
	assert.True(t, user.TosAccepted)
	assert.Equal(t, "sess-1", user.SessionID)
	assert.True(t, user.VisitedAt.After(user.CreatedAt))

	settings, err := f.svc.LoadUserSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, `{"theme":"dark"}`, settings)

	_, err = f.svc.LoadUserSettings(ctx, "nobody")
	assert.ErrorIs(t, err, storageio.ErrNotFound)
	assert.ErrorIs(t, f.svc.SetUserName(ctx, "nobody", "x"), storageio.ErrNotFound)

	_, err = f.svc.GetUser(ctx, "", "")
	assert.ErrorIs(t, err, storageio.ErrInvalidArgument)
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.createProject(t, "u1")

	require.NoError(t, f.svc.WriteUserFile(ctx, "u1", "android.keystore", bytes.Repeat([]byte("k"), int(storageio.DefaultInlineLimit)+1)))
	require.Len(t, f.blobs.Keys(), 1)

	err := f.svc.DeleteAccount(ctx, "u1")
	assert.ErrorIs(t, err, storageio.ErrFailedPrecondition)

	require.NoError(t, f.svc.DeleteProject(ctx, "u1", id))
	require.NoError(t, f.svc.DeleteAccount(ctx, "u1"))

	assert.Empty(t, f.blobs.Keys())
	_, err = f.svc.LoadUserSettings(ctx, "u1")
	assert.ErrorIs(t, err, storageio.ErrNotFound)
}

func TestProjectLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.GetUser(ctx, "u1", "")
	require.NoError(t, err)

	id, err := f.svc.CreateProject(ctx, "u1", storageio.CreateProjectRequest{
		Name:     "HelloPurr",
		Type:     "YoungAndroid",
		Settings: `{"Screen1":{}}`,
		Files: []storageio.InitialFile{
			{Path: "src/Screen1.scm", Role: storageio.RoleSource, Content: []byte("scm")},
			{Path: "assets/kitty.png", Role: storageio.RoleSource, Content: []byte("png")},
		},
	})
	require.NoError(t, err)

	ids, err := f.svc.ListProjects(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	project, err := f.svc.GetProject(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "HelloPurr", project.Name)
	assert.Equal(t, "u1", project.OwnerID)
	assert.Equal(t, project.DateCreated, project.DateModified)

	settings, err := f.svc.LoadProjectSettings(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, `{"Screen1":{}}`, settings)

	require.NoError(t, f.svc.StoreProjectHistory(ctx, "u1", id, "v1"))
	history, err := f.svc.GetProjectHistory(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "v1", history)

	project2, err := f.svc.GetProject(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, project.DateModified, project2.DateModified, "history does not touch the project")

	require.NoError(t, f.svc.StoreBuildStatus(ctx, "u1", id, 40))
	assert.Len(t, f.blobs.Keys(), 1)

	require.NoError(t, f.svc.DeleteProject(ctx, "u1", id))

	ids, err = f.svc.ListProjects(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, f.blobs.Keys())

	progress, err := f.svc.GetBuildStatus(ctx, "u1", id)
	require.NoError(t, err)
	assert.Zero(t, progress)

	_, err = f.svc.ReadFileContent(ctx, id, "src/Screen1.scm")
	assert.ErrorIs(t, err, storageio.ErrNotFound)
}

func TestCreateProjectValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name string
		req  storageio.CreateProjectRequest
	}{
		{"no name", storageio.CreateProjectRequest{}},
		{"bad role", storageio.CreateProjectRequest{Name: "P", Files: []storageio.InitialFile{{Path: "a", Role: "x"}}}},
		{"empty path", storageio.CreateProjectRequest{Name: "P", Files: []storageio.InitialFile{{Role: storageio.RoleSource}}}},
		{"duplicate path", storageio.CreateProjectRequest{Name: "P", Files: []storageio.InitialFile{
			{Path: "a", Role: storageio.RoleSource},
			{Path: "a", Role: storageio.RoleTarget},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateProject(ctx, "u1", tt.req)
			assert.ErrorIs(t, err, storageio.ErrInvalidArgument)
		})
	}
	assert.Empty(t, f.blobs.Keys())
}

func TestUserFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.AddUserFiles(ctx, "u1", "android.keystore", "notes.txt"))
	require.NoError(t, f.svc.WriteUserFile(ctx, "u1", "notes.txt", []byte("hi")))
	require.NoError(t, f.svc.AddUserFiles(ctx, "u1", "notes.txt"))

	got, err := f.svc.ReadUserFile(ctx, "u1", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))

	got, err = f.svc.ReadUserFile(ctx, "u1", "android.keystore")
	require.NoError(t, err)
	assert.Empty(t, got)

	names, err := f.svc.ListUserFiles(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"android.keystore", "notes.txt"}, names)

	require.NoError(t, f.svc.DeleteUserFile(ctx, "u1", "notes.txt"))
	require.NoError(t, f.svc.DeleteUserFile(ctx, "u1", "notes.txt"))
	_, err = f.svc.ReadUserFile(ctx, "u1", "notes.txt")
	assert.ErrorIs(t, err, storageio.ErrNotFound)

	assert.ErrorIs(t, f.svc.AddUserFiles(ctx, "u1", ""), storageio.ErrInvalidArgument)
	assert.ErrorIs(t, f.svc.WriteUserFile(ctx, "u1", "", nil), storageio.ErrInvalidArgument)
}

func TestBuildStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.createProject(t, "u1")

	progress, err := f.svc.GetBuildStatus(ctx, "u1", id)
	require.NoError(t, err)
	assert.Zero(t, progress)

	require.NoError(t, f.svc.StoreBuildStatus(ctx, "u1", id, 75))
	progress, err = f.svc.GetBuildStatus(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, 75, progress)

	assert.ErrorIs(t, f.svc.StoreBuildStatus(ctx, "u1", id, 101), storageio.ErrInvalidArgument)
	assert.ErrorIs(t, f.svc.StoreBuildStatus(ctx, "u1", id, -1), storageio.ErrInvalidArgument)
}

func TestBuildStatusNeedsLiveProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.createProject(t, "u1")

	assert.ErrorIs(t, f.svc.StoreBuildStatus(ctx, "u1", "no-such-project", 10), storageio.ErrNotFound)

	require.NoError(t, f.svc.DeleteProject(ctx, "u1", id))
	assert.ErrorIs(t, f.svc.StoreBuildStatus(ctx, "u1", id, 50), storageio.ErrNotFound)

	key := storageio.ChildKey(storageio.RootKey(storageio.KindProject, id), storageio.KindBuildStatus, "u1")
	_, err := f.backend.Get(ctx, key)
	assert.ErrorIs(t, err, storageio.ErrNotFound)
}

func TestNoncesAndPasswordResets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.StoreNonce(ctx, "old", "u1", "p1"))
	resetID, err := f.svc.CreatePasswordReset(ctx, "a@example.com")
	require.NoError(t, err)

	f.clock.Advance(4 * time.Hour)
	require.NoError(t, f.svc.StoreNonce(ctx, "fresh", "u1", "p1"))

	nonce, err := f.svc.GetNonce(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "p1", nonce.ProjectID)

	removed, err := f.svc.CleanupNonces(ctx, 3*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = f.svc.GetNonce(ctx, "old")
	assert.ErrorIs(t, err, storageio.ErrNotFound)
	_, err = f.svc.GetNonce(ctx, "fresh")
	assert.NoError(t, err)

	reset, err := f.svc.FindPasswordReset(ctx, resetID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", reset.Email)

	removed, err = f.svc.CleanupPasswordResets(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	f.clock.Advance(24 * time.Hour)
	removed, err = f.svc.CleanupPasswordResets(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = f.svc.FindPasswordReset(ctx, resetID)
	assert.ErrorIs(t, err, storageio.ErrNotFound)

	assert.ErrorIs(t, f.svc.StoreNonce(ctx, "", "u1", "p1"), storageio.ErrInvalidArgument)
	_, err = f.svc.CreatePasswordReset(ctx, "")
	assert.ErrorIs(t, err, storageio.ErrInvalidArgument)
}

func TestSiteContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	content, err := f.svc.LoadBackpack(ctx, "bp1")
	require.NoError(t, err)
	assert.Empty(t, content)
	require.NoError(t, f.svc.StoreBackpack(ctx, "bp1", "<xml/>"))
	content, err = f.svc.LoadBackpack(ctx, "bp1")
	require.NoError(t, err)
	assert.Equal(t, "<xml/>", content)
	assert.ErrorIs(t, f.svc.StoreBackpack(ctx, "", "x"), storageio.ErrInvalidArgument)

	motd, err := f.svc.GetMotd(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), motd.ID)
	assert.Empty(t, motd.Content)
	require.NoError(t, f.svc.StoreMotd(ctx, "maintenance tonight"))
	motd, err = f.svc.GetMotd(ctx)
	require.NoError(t, err)
	assert.Equal(t, "maintenance tonight", motd.Content)

	splash, err := f.svc.GetSplashConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, storageio.DefaultSplashWidth, splash.Width)
	assert.Equal(t, storageio.DefaultSplashHeight, splash.Height)
	assert.Zero(t, splash.Version)

	for i := 1; i <= 2; i++ {
		require.NoError(t, f.svc.StoreSplashConfig(ctx, storageio.StoreSplashConfigRequest{Width: 400, Height: 200, Content: "<p>hi</p>"}))
		splash, err = f.svc.GetSplashConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, splash.Version)
	}
	assert.Equal(t, 400, splash.Width)

	err = f.svc.StoreSplashConfig(ctx, storageio.StoreSplashConfigRequest{Width: 0, Height: 10})
	assert.ErrorIs(t, err, storageio.ErrInvalidArgument)
}
