package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/suite"

	apperrors "github.com/Kosench/shortlink/internal/errors"
	"github.com/Kosench/shortlink/internal/model"
)

type URLRepositoryTestSuite struct {
	suite.Suite
	errUnknown error
	columns    []string
	now        time.Time
	db         *sql.DB
	mock       sqlmock.Sqlmock
	repo       *PostgresURLRepository
}

func (s *URLRepositoryTestSuite) SetupSuite() {
	s.errUnknown = errors.New("unknown error")
	s.columns = []string{"id", "original_url", "short_code", "access_count", "created_at", "updated_at"}
	s.now = time.Date(2025, 7, 26, 15, 0, 0, 0, time.UTC)
}

func (s *URLRepositoryTestSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)

	s.db = db
	s.mock = mock
	s.repo = NewPostgresURLRepository(db)
}

func (s *URLRepositoryTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *URLRepositoryTestSuite) newURL() *model.URL {
	return &model.URL{
		OriginalURL: "https://example.com/a",
		ShortCode:   "abc123",
		CreatedAt:   s.now,
	}
}

func (s *URLRepositoryTestSuite) TestInsert_Success() {
	s.mock.ExpectQuery(`INSERT INTO urls`).
		WithArgs("https://example.com/a", "abc123", int64(0), s.now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	url := s.newURL()
	err := s.repo.Insert(context.Background(), url)

	s.NoError(err)
	s.Equal(int64(42), url.ID)
	s.Equal(s.now, url.LastModifiedAt)
}

func (s *URLRepositoryTestSuite) TestInsert_OriginalURLExists() {
	s.mock.ExpectQuery(`INSERT INTO urls`).
		WithArgs("https://example.com/a", "abc123", int64(0), s.now).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode, ConstraintName: constraintOriginalURL})

	err := s.repo.Insert(context.Background(), s.newURL())

	s.ErrorIs(err, apperrors.ErrURLAlreadyExists)
}

func (s *URLRepositoryTestSuite) TestInsert_ShortCodeExists() {
	s.mock.ExpectQuery(`INSERT INTO urls`).
		WithArgs("https://example.com/a", "abc123", int64(0), s.now).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode, ConstraintName: constraintShortCode})

	err := s.repo.Insert(context.Background(), s.newURL())

	s.ErrorIs(err, apperrors.ErrShortCodeExists)
}

func (s *URLRepositoryTestSuite) TestInsert_UnknownError() {
	s.mock.ExpectQuery(`INSERT INTO urls`).
		WithArgs("https://example.com/a", "abc123", int64(0), s.now).
		WillReturnError(s.errUnknown)

	err := s.repo.Insert(context.Background(), s.newURL())

	s.ErrorIs(err, s.errUnknown)
	s.True(apperrors.IsStoreError(err))
}

func (s *URLRepositoryTestSuite) TestFindByShortCode() {
	s.Run("found", func() {
		rows := sqlmock.NewRows(s.columns).
			AddRow(int64(1), "https://example.com/a", "abc123", int64(7), s.now, s.now.Add(time.Hour))
		s.mock.ExpectQuery(`SELECT (.+) FROM urls WHERE short_code`).
			WithArgs("abc123").
			WillReturnRows(rows)

		url, err := s.repo.FindByShortCode(context.Background(), "abc123")

		s.Require().NoError(err)
		s.Equal("https://example.com/a", url.OriginalURL)
		s.Equal(int64(7), url.AccessCount)
		s.Equal(s.now.Add(time.Hour), url.LastModifiedAt)
	})

	s.Run("not found", func() {
		s.mock.ExpectQuery(`SELECT (.+) FROM urls WHERE short_code`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		url, err := s.repo.FindByShortCode(context.Background(), "missing")

		s.ErrorIs(err, apperrors.ErrURLNotFound)
		s.Nil(url)
	})

	s.Run("database error", func() {
		s.mock.ExpectQuery(`SELECT (.+) FROM urls WHERE short_code`).
			WithArgs("abc123").
			WillReturnError(s.errUnknown)

		_, err := s.repo.FindByShortCode(context.Background(), "abc123")

		s.ErrorIs(err, s.errUnknown)
		s.True(apperrors.IsStoreError(err))
	})
}

func (s *URLRepositoryTestSuite) TestFindByOriginalURL() {
	s.Run("found", func() {
		rows := sqlmock.NewRows(s.columns).
			AddRow(int64(1), "https://example.com/a", "abc123", int64(0), s.now, s.now)
		s.mock.ExpectQuery(`SELECT (.+) FROM urls WHERE original_url`).
			WithArgs("https://example.com/a").
			WillReturnRows(rows)

		url, err := s.repo.FindByOriginalURL(context.Background(), "https://example.com/a")

		s.Require().NoError(err)
		s.Equal("abc123", url.ShortCode)
	})

	s.Run("not found", func() {
		s.mock.ExpectQuery(`SELECT (.+) FROM urls WHERE original_url`).
			WithArgs("https://example.com/b").
			WillReturnRows(sqlmock.NewRows(s.columns))

		_, err := s.repo.FindByOriginalURL(context.Background(), "https://example.com/b")

		s.ErrorIs(err, apperrors.ErrURLNotFound)
	})
}

func (s *URLRepositoryTestSuite) TestExistsByShortCode() {
	s.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.repo.ExistsByShortCode(context.Background(), "abc123")

	s.NoError(err)
	s.True(exists)
}

func (s *URLRepositoryTestSuite) TestBatchUpdate_Empty() {
	s.NoError(s.repo.BatchUpdate(context.Background(), nil))
}

func (s *URLRepositoryTestSuite) TestBatchUpdate_Success() {
	updates := []model.AccessUpdate{
		{ShortCode: "abc123", Delta: 3, ModifiedAt: s.now},
		{ShortCode: "xyz789", Delta: 10, ModifiedAt: s.now},
	}

	s.mock.ExpectBegin()
	prep := s.mock.ExpectPrepare(`UPDATE urls`)
	prep.ExpectExec().WithArgs(int64(3), s.now, "abc123").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(int64(10), s.now, "xyz789").WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	s.NoError(s.repo.BatchUpdate(context.Background(), updates))
}

func (s *URLRepositoryTestSuite) TestBatchUpdate_RollsBackOnError() {
	updates := []model.AccessUpdate{
		{ShortCode: "abc123", Delta: 3, ModifiedAt: s.now},
		{ShortCode: "xyz789", Delta: 10, ModifiedAt: s.now},
	}

	s.mock.ExpectBegin()
	prep := s.mock.ExpectPrepare(`UPDATE urls`)
	prep.ExpectExec().WithArgs(int64(3), s.now, "abc123").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(int64(10), s.now, "xyz789").WillReturnError(s.errUnknown)
	s.mock.ExpectRollback()

	err := s.repo.BatchUpdate(context.Background(), updates)

	s.ErrorIs(err, s.errUnknown)
	s.True(apperrors.IsStoreError(err))
}

func (s *URLRepositoryTestSuite) TestBatchUpdate_CommitError() {
	updates := []model.AccessUpdate{{ShortCode: "abc123", Delta: 1, ModifiedAt: s.now}}

	s.mock.ExpectBegin()
	s.mock.ExpectPrepare(`UPDATE urls`).
		ExpectExec().WithArgs(int64(1), s.now, "abc123").WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit().WillReturnError(s.errUnknown)

	err := s.repo.BatchUpdate(context.Background(), updates)

	s.ErrorIs(err, s.errUnknown)
}

func TestURLRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(URLRepositoryTestSuite))
}
