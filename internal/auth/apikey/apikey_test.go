package apikey

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/postgres"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := NewStore(postgres.FromDB(db))
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

var keyColumns = []string{"id", "name", "scopes", "active", "created_at", "expires_at"}

const selectKey = "FROM admin_keys WHERE key_hash = $1 AND active"

func TestValidate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectKey)).
		WithArgs(HashKey("mk_secret")).
		WillReturnRows(sqlmock.NewRows(keyColumns).
			AddRow("k1", "deploy", "{models:reload}", true, fixedNow.Add(-time.Hour), nil))

	info, err := s.Validate(context.Background(), "mk_secret", ScopeReload)
	require.NoError(t, err)
	assert.Equal(t, "deploy", info.Name)
	assert.Equal(t, []string{ScopeReload}, info.Scopes)
	assert.Nil(t, info.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateUnknownKey(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectKey)).WillReturnRows(sqlmock.NewRows(keyColumns))

	_, err := s.Validate(context.Background(), "nope", ScopeReload)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestValidateExpired(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectKey)).
		WillReturnRows(sqlmock.NewRows(keyColumns).
			AddRow("k1", "old", "{*}", true, fixedNow.Add(-48*time.Hour), fixedNow.Add(-time.Minute)))

	_, err := s.Validate(context.Background(), "mk_old", ScopeReload)
	assert.ErrorIs(t, err, ErrExpiredKey)
}

func TestValidateMissingScope(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectKey)).
		WillReturnRows(sqlmock.NewRows(keyColumns).
			AddRow("k1", "viewer", "{models:read}", true, fixedNow, fixedNow.Add(time.Hour)))

	_, err := s.Validate(context.Background(), "mk_viewer", ScopeReload)
	assert.ErrorIs(t, err, ErrScope)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestValidateQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectKey)).WillReturnError(errors.New("connection reset"))

	_, err := s.Validate(context.Background(), "mk_x", ScopeReload)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestCreate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO admin_keys")).
		WithArgs(sqlmock.AnyArg(), "deploy", sqlmock.AnyArg(), sqlmock.AnyArg(), fixedNow, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	raw, info, err := s.Create(context.Background(), "deploy", []string{ScopeReload}, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "mk_"))
	assert.Len(t, raw, len("mk_")+64)
	assert.NotEmpty(t, info.ID)
	require.NotNil(t, info.ExpiresAt)
	assert.Equal(t, fixedNow.Add(24*time.Hour), *info.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequiresScopes(t *testing.T) {
	s, _ := newMockStore(t)
	_, _, err := s.Create(context.Background(), "deploy", nil, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRevoke(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE admin_keys SET active = FALSE")).
		WithArgs("k1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE admin_keys SET active = FALSE")).
		WithArgs("k2").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Revoke(context.Background(), "k1"))
	assert.ErrorIs(t, s.Revoke(context.Background(), "k2"), apperrors.ErrInvalidInput)
}

func TestList(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM admin_keys WHERE active ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows(keyColumns).
			AddRow("k2", "ci", "{*}", true, fixedNow, fixedNow.Add(time.Hour)).
			AddRow("k1", "deploy", "{models:reload}", true, fixedNow.Add(-time.Hour), nil))

	keys, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.True(t, keys[0].Allows(ScopeReload))
	assert.NotNil(t, keys[0].ExpiresAt)
	assert.Nil(t, keys[1].ExpiresAt)
}

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, HashKey("abc"), HashKey("abc"))
	assert.Len(t, HashKey("abc"), 64)
	assert.NotEqual(t, HashKey("abc"), HashKey("abd"))
}
