package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// Index failures must surface as errors rather than silently dropping the
// record; sqlmock drives the database error paths a real file cannot.

func newMockStore(t *testing.T) (*TraceStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trace_index").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := New(Options{
		Dir:    t.TempDir(),
		DB:     db,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, mock
}

func TestSaveTraceIndexFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO trace_index").
		WillReturnError(errors.New("database is locked"))

	err := s.SaveTrace(context.Background(), sampleTrace(t, "conv-1", "sess-1"))
	if err == nil {
		t.Fatal("SaveTrace should propagate index errors")
	}
	if !strings.Contains(err.Error(), "index trace") {
		t.Errorf("error %q should wrap the index step", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestQueryFailurePropagates(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM trace_index").
		WillReturnError(errors.New("disk I/O error"))

	_, err := s.ByConversation(context.Background(), "conv-1")
	if err == nil {
		t.Fatal("ByConversation should propagate query errors")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSchemaFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trace_index").
		WillReturnError(errors.New("readonly database"))

	_, err = New(Options{Dir: t.TempDir(), DB: db})
	if err == nil {
		t.Fatal("New should fail when the schema cannot be created")
	}
}
