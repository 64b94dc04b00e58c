package usermap

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webident/loginza/internal/models"
)

// fakeUserRepo implements users.Repository in memory with sequential ids.
type fakeUserRepo struct {
	seq   int64
	users map[int64]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int64]*models.User{}}
}

func (f *fakeUserRepo) add(u *models.User) *models.User {
	f.users[u.ID] = u
	if u.ID > f.seq {
		f.seq = u.ID
	}
	return u
}

func (f *fakeUserRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.seq++
	u.ID = f.seq
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return f.users[id], nil
}

func (f *fakeUserRepo) UpdateName(ctx context.Context, id int64, firstName, lastName string) error {
	u, ok := f.users[id]
	if !ok {
		return fmt.Errorf("user %d not found", id)
	}
	u.FirstName, u.LastName = firstName, lastName
	return nil
}

func (f *fakeUserRepo) SetAvatarURL(ctx context.Context, id int64, url string) error {
	u, ok := f.users[id]
	if !ok {
		return fmt.Errorf("user %d not found", id)
	}
	u.AvatarURL = url
	return nil
}

// fakeMapRepo implements Repository in memory.
type fakeMapRepo struct {
	seq        int64
	byIdentity map[string]*models.UserMap
	byID       map[int64]*models.UserMap
}

func newFakeMapRepo() *fakeMapRepo {
	return &fakeMapRepo{byIdentity: map[string]*models.UserMap{}, byID: map[int64]*models.UserMap{}}
}

func (f *fakeMapRepo) GetByIdentity(ctx context.Context, identityKey string) (*models.UserMap, error) {
	return f.byIdentity[identityKey], nil
}

func (f *fakeMapRepo) GetByID(ctx context.Context, id int64) (*models.UserMap, error) {
	return f.byID[id], nil
}

func (f *fakeMapRepo) Create(ctx context.Context, m *models.UserMap) (*models.UserMap, error) {
	f.seq++
	m.ID = f.seq
	f.byIdentity[m.Identity] = m
	f.byID[m.ID] = m
	return m, nil
}

func (f *fakeMapRepo) Delete(ctx context.Context, id int64) error {
	if m, ok := f.byID[id]; ok {
		delete(f.byIdentity, m.Identity)
		delete(f.byID, id)
	}
	return nil
}

func (f *fakeMapRepo) SetVerified(ctx context.Context, id int64, verified bool) error {
	m, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("map %d not found", id)
	}
	m.Verified = verified
	return nil
}

func (f *fakeMapRepo) HasForIdentity(ctx context.Context, identityKey string) (bool, error) {
	_, ok := f.byIdentity[identityKey]
	return ok, nil
}

// fakeIdentityRepo implements identity.Repository in memory.
type fakeIdentityRepo struct {
	store   map[string]*models.Identity
	deleted []string
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{store: map[string]*models.Identity{}}
}

func (f *fakeIdentityRepo) Upsert(ctx context.Context, identityKey, provider, data string) (*models.Identity, error) {
	id := &models.Identity{Identity: identityKey, Provider: provider, Data: data}
	f.store[identityKey] = id
	return id, nil
}

func (f *fakeIdentityRepo) GetByIdentity(ctx context.Context, identityKey string) (*models.Identity, error) {
	return f.store[identityKey], nil
}

func (f *fakeIdentityRepo) Delete(ctx context.Context, identityKey string) error {
	delete(f.store, identityKey)
	f.deleted = append(f.deleted, identityKey)
	return nil
}

// fakeAvatars records SetFromURL calls and can fail on demand.
type fakeAvatars struct {
	calls []string
	err   error
}

func (f *fakeAvatars) SetFromURL(ctx context.Context, userID int64, photoURL string) error {
	f.calls = append(f.calls, photoURL)
	return f.err
}

func ident(key, data string) *models.Identity {
	return &models.Identity{Identity: key, Provider: "google", Data: data}
}

func TestForIdentity_CreatesAccountFromNickname(t *testing.T) {
	maps, usersRepo, ids := newFakeMapRepo(), newFakeUserRepo(), newFakeIdentityRepo()
	svc := NewService(maps, usersRepo, ids, nil, "noreply@site.com")
	ctx := context.Background()

	var fired int
	svc.Subscribe(ObserverFunc(func(ctx context.Context, req *RequestInfo, m *models.UserMap) {
		fired++
	}))

	m, err := svc.ForIdentity(ctx, ident("i1", `{"identity":"i1","provider":"google","nickname":"bob","email":"a@b.com"}`), nil)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, 1, fired)

	u, err := usersRepo.GetByID(ctx, m.UserID)
	require.NoError(t, err)
	require.Equal(t, "bob", u.Username)
	require.Equal(t, "a@b.com", u.Email)

	// repeated resolution is idempotent and fires no second event
	m2, err := svc.ForIdentity(ctx, ident("i1", `{"identity":"i1","provider":"google","nickname":"bob","email":"a@b.com"}`), nil)
	require.NoError(t, err)
	require.Equal(t, m.ID, m2.ID)
	require.Equal(t, 1, fired)
}

func TestForIdentity_UsernameFromEmailLocalPart(t *testing.T) {
	maps, usersRepo, ids := newFakeMapRepo(), newFakeUserRepo(), newFakeIdentityRepo()
	svc := NewService(maps, usersRepo, ids, nil, "noreply@site.com")
	ctx := context.Background()

	m, err := svc.ForIdentity(ctx, ident("i2", `{"identity":"i2","provider":"google","email":"carl@example.com"}`), nil)
	require.NoError(t, err)

	u, err := usersRepo.GetByID(ctx, m.UserID)
	require.NoError(t, err)
	require.Equal(t, "carl", u.Username)
	require.Equal(t, "carl@example.com", u.Email)
}

func TestForIdentity_DefaultEmailCollision(t *testing.T) {
	maps, usersRepo, ids := newFakeMapRepo(), newFakeUserRepo(), newFakeIdentityRepo()
	svc := NewService(maps, usersRepo, ids, nil, "noreply@site.com")
	ctx := context.Background()

	// an earlier payload without an email already took the default address
	usersRepo.add(&models.User{ID: 7, Username: "noreply", Email: "noreply@site.com"})

	m, err := svc.ForIdentity(ctx, ident("i3", `{"identity":"i3","provider":"google"}`), nil)
	require.NoError(t, err)

	u, err := usersRepo.GetByID(ctx, m.UserID)
	require.NoError(t, err)
	require.Equal(t, "noreply7", u.Username)
	require.Equal(t, "noreply7@site.com", u.Email)
}

func TestForIdentity_NoEmailNoDefault(t *testing.T) {
	maps, usersRepo, ids := newFakeMapRepo(), newFakeUserRepo(), newFakeIdentityRepo()
	svc := NewService(maps, usersRepo, ids, nil, "")
	ctx := context.Background()

	_, err := svc.ForIdentity(ctx, ident("i4", `{"identity":"i4","provider":"google"}`), nil)
	require.Error(t, err)
}

func TestForIdentity_UnresolvableCollision(t *testing.T) {
	maps, usersRepo, ids := newFakeMapRepo(), newFakeUserRepo(), newFakeIdentityRepo()
	svc := NewService(maps, usersRepo, ids, nil, "noreply@site.com")
	ctx := context.Background()

	// duplicate non-default email never changes between iterations
	usersRepo.add(&models.User{ID: 3, Username: "taken", Email: "dup@example.com"})

	_, err := svc.ForIdentity(ctx, ident("i5", `{"identity":"i5","provider":"google","email":"dup@example.com"}`), nil)
	require.ErrorIs(t, err, ErrCollisionUnresolved)
}

func TestApplyProfile_NamePrecedence(t *testing.T) {
	cases := []struct {
		name      string
		data      string
		wantFirst string
		wantLast  string
	}{
		{
			name:      "structured name wins",
			data:      `{"identity":"p","provider":"google","name":{"first_name":"Ann","last_name":"Lee"},"full_name":"Other","nickname":"nick"}`,
			wantFirst: "Ann",
			wantLast:  "Lee",
		},
		{
			name:      "nested full name when no first name",
			data:      `{"identity":"p","provider":"google","name":{"full_name":"Ann Lee"}}`,
			wantFirst: "Ann Lee",
		},
		{
			name:      "name sent as a bare string",
			data:      `{"identity":"p","provider":"google","name":"Ann Lee"}`,
			wantFirst: "Ann Lee",
		},
		{
			name:      "top-level full name",
			data:      `{"identity":"p","provider":"google","full_name":"Top Level"}`,
			wantFirst: "Top Level",
		},
		{
			name:      "nickname as last resort",
			data:      `{"identity":"p","provider":"google","nickname":"nick"}`,
			wantFirst: "nick",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			maps, usersRepo, ids := newFakeMapRepo(), newFakeUserRepo(), newFakeIdentityRepo()
			svc := NewService(maps, usersRepo, ids, nil, "noreply@site.com")
			ctx := context.Background()

			u, err := usersRepo.Create(ctx, &models.User{Username: "u", Email: "u@example.com"})
			require.NoError(t, err)

			require.NoError(t, svc.ApplyProfile(ctx, ident("p", tc.data), u))
			require.Equal(t, tc.wantFirst, u.FirstName)
			require.Equal(t, tc.wantLast, u.LastName)
		})
	}
}

func TestApplyProfile_NonameFallbackUsesMapID(t *testing.T) {
	maps, usersRepo, ids := newFakeMapRepo(), newFakeUserRepo(), newFakeIdentityRepo()
	svc := NewService(maps, usersRepo, ids, nil, "noreply@site.com")
	ctx := context.Background()

	// a payload carrying nothing name-like at all
	m, err := svc.ForIdentity(ctx, ident("p2", `{"identity":"p2","provider":"google"}`), nil)
	require.NoError(t, err)
	u, err := usersRepo.GetByID(ctx, m.UserID)
	require.NoError(t, err)

	require.NoError(t, svc.ApplyProfile(ctx, ident("p2", `{"identity":"p2","provider":"google"}`), u))
	require.Equal(t, fmt.Sprintf("noname%d", m.ID), u.FirstName)
}

func TestApplyProfile_KeepsLastNameWhenAbsent(t *testing.T) {
	maps, usersRepo, ids := newFakeMapRepo(), newFakeUserRepo(), newFakeIdentityRepo()
	svc := NewService(maps, usersRepo, ids, nil, "noreply@site.com")
	ctx := context.Background()

	u, err := usersRepo.Create(ctx, &models.User{Username: "u", Email: "u@example.com", LastName: "Kept"})
	require.NoError(t, err)

	require.NoError(t, svc.ApplyProfile(ctx, ident("p3", `{"identity":"p3","provider":"google","name":{"first_name":"Ann"}}`), u))
	require.Equal(t, "Ann", u.FirstName)
	require.Equal(t, "Kept", u.LastName)
}

func TestApplyProfile_AvatarFailureIsNotFatal(t *testing.T) {
	maps, usersRepo, ids := newFakeMapRepo(), newFakeUserRepo(), newFakeIdentityRepo()
	avatars := &fakeAvatars{err: errors.New("download failed")}
	svc := NewService(maps, usersRepo, ids, avatars, "noreply@site.com")
	ctx := context.Background()

	u, err := usersRepo.Create(ctx, &models.User{Username: "u", Email: "u@example.com"})
	require.NoError(t, err)

	data := `{"identity":"p4","provider":"google","name":{"first_name":"Ann"},"photo":"https://img.example.com/a.jpg"}`
	require.NoError(t, svc.ApplyProfile(ctx, ident("p4", data), u))
	require.Equal(t, []string{"https://img.example.com/a.jpg"}, avatars.calls)
	// the name update still landed
	require.Equal(t, "Ann", u.FirstName)
}

func TestSetVerified(t *testing.T) {
	maps, usersRepo, ids := newFakeMapRepo(), newFakeUserRepo(), newFakeIdentityRepo()
	svc := NewService(maps, usersRepo, ids, nil, "noreply@site.com")
	ctx := context.Background()

	m, err := svc.ForIdentity(ctx, ident("v1", `{"identity":"v1","provider":"google","email":"v@example.com"}`), nil)
	require.NoError(t, err)
	require.False(t, m.Verified)

	require.NoError(t, svc.SetVerified(ctx, m.ID, true))
	got, err := maps.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, got.Verified)
}

func TestDeleteMapping_CascadesToIdentity(t *testing.T) {
	maps, usersRepo, ids := newFakeMapRepo(), newFakeUserRepo(), newFakeIdentityRepo()
	svc := NewService(maps, usersRepo, ids, nil, "noreply@site.com")
	ctx := context.Background()

	data := `{"identity":"d1","provider":"google","email":"d@example.com"}`
	_, err := ids.Upsert(ctx, "d1", "google", data)
	require.NoError(t, err)
	m, err := svc.ForIdentity(ctx, ident("d1", data), nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMapping(ctx, m.ID))
	gone, err := maps.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.Nil(t, gone)
	require.Equal(t, []string{"d1"}, ids.deleted)

	// deleting an unknown map is a no-op
	require.NoError(t, svc.DeleteMapping(ctx, 999))
}
