// Package docstore keeps published podcasts and their authors in SQLite.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrPodcastNotFound is returned for an unknown podcast id.
var ErrPodcastNotFound = errors.New("podcast not found")

const (
	opCreate = "create record"
	opQuery  = "query podcasts"

	fallbackEmailDomain = "@clerk.user"
	fallbackName        = "Unknown"

	podcastColumns = `id, user_id, title, description, audio_url, audio_storage_id, image_url,
		image_storage_id, author, author_id, author_image_url, voice_prompt, image_prompt, voice,
		audio_duration, views, created_at`
)

// User is an author known to the store.
type User struct {
	ID       string
	Subject  string
	Email    string
	Name     string
	ImageURL string
}

// Podcast is a published podcast as stored.
type Podcast struct {
	ID             string
	UserID         string
	Title          string
	Description    string
	AudioURL       string
	AudioStorageID string
	ImageURL       string
	ImageStorageID string
	Author         string
	AuthorID       string
	AuthorImageURL string
	VoicePrompt    string
	ImagePrompt    string
	Voice          core.Voice
	AudioDuration  float64
	Views          int
	CreatedAt      time.Time
}

// Store is the SQLite-backed document store.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		_, err = db.ExecContext(ctx, pragma)
		if err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	store := &Store{db: db, path: path}

	err = store.applyMigrations(ctx)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// CreateRecord stores a published podcast for identity and returns its id.
// An author seen for the first time is created from the identity claims.
func (s *Store) CreateRecord(ctx context.Context, identity core.Identity, record core.PodcastRecord) (string, error) {
	if strings.TrimSpace(identity.Subject) == "" {
		return "", core.Wrap(core.ErrUnauthenticated, opCreate, "", nil)
	}

	err := validateRecord(record)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", core.Wrap(core.ErrUpstream, opCreate, "begin transaction", err)
	}

	defer func() { _ = tx.Rollback() }()

	user, err := ensureUser(ctx, tx, identity)
	if err != nil {
		return "", core.Wrap(core.ErrUpstream, opCreate, "resolve author", err)
	}

	podcastID := uuid.New().String()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO podcasts (`+podcastColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		podcastID,
		user.ID,
		record.Title,
		record.Description,
		record.Audio.URL,
		record.Audio.StorageID,
		record.Image.URL,
		record.Image.StorageID,
		user.Name,
		user.Subject,
		user.ImageURL,
		record.VoicePrompt,
		record.ImagePrompt,
		string(record.Voice),
		record.AudioDuration,
		record.Views,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", core.Wrap(core.ErrUpstream, opCreate, "insert podcast", err)
	}

	err = tx.Commit()
	if err != nil {
		return "", core.Wrap(core.ErrUpstream, opCreate, "commit", err)
	}

	return podcastID, nil
}

func validateRecord(record core.PodcastRecord) error {
	switch {
	case strings.TrimSpace(record.Title) == "":
		return core.Wrap(core.ErrValidation, opCreate, "title is required", nil)
	case strings.TrimSpace(record.Description) == "":
		return core.Wrap(core.ErrValidation, opCreate, "description is required", nil)
	case !record.Audio.Valid():
		return core.Wrap(core.ErrValidation, opCreate, "audio reference is incomplete", nil)
	case !record.Image.Valid():
		return core.Wrap(core.ErrValidation, opCreate, "image reference is incomplete", nil)
	case record.Voice == "":
		return core.Wrap(core.ErrValidation, opCreate, "voice is required", nil)
	}

	return nil
}

func ensureUser(ctx context.Context, tx *sql.Tx, identity core.Identity) (User, error) {
	user := User{Subject: identity.Subject}

	err := tx.QueryRowContext(ctx,
		`SELECT id, email, name, image_url FROM users WHERE subject = ?`, identity.Subject,
	).Scan(&user.ID, &user.Email, &user.Name, &user.ImageURL)
	if err == nil {
		return user, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("find user: %w", err)
	}

	user = userFromIdentity(identity)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, subject, email, name, image_url) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Subject, user.Email, user.Name, user.ImageURL,
	)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// userFromIdentity fills missing claims: the email falls back to the subject
// under a placeholder domain, the name to the email's local part.
func userFromIdentity(identity core.Identity) User {
	name := strings.TrimSpace(identity.Name)
	email := strings.TrimSpace(identity.Email)

	if name == "" {
		name = fallbackName
		if local, _, found := strings.Cut(email, "@"); found && local != "" {
			name = local
		} else if !found && email != "" {
			name = email
		}
	}

	if email == "" {
		email = identity.Subject + fallbackEmailDomain
	}

	return User{
		ID:       uuid.New().String(),
		Subject:  identity.Subject,
		Email:    email,
		Name:     name,
		ImageURL: identity.PictureURL,
	}
}

// UserBySubject returns the author registered for subject.
func (s *Store) UserBySubject(ctx context.Context, subject string) (*User, error) {
	user := User{Subject: subject}

	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, image_url FROM users WHERE subject = ?`, subject,
	).Scan(&user.ID, &user.Email, &user.Name, &user.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

// GetByID fetches one podcast.
func (s *Store) GetByID(ctx context.Context, podcastID string) (*Podcast, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+podcastColumns+` FROM podcasts WHERE id = ?`, podcastID)

	podcast, err := scanPodcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPodcastNotFound, podcastID)
	}

	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, opQuery, "get podcast", err)
	}

	return podcast, nil
}

// IncrementViews records one more play of a podcast.
func (s *Store) IncrementViews(ctx context.Context, podcastID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE podcasts SET views = views + 1 WHERE id = ?`, podcastID)
	if err != nil {
		return core.Wrap(core.ErrUpstream, opQuery, "increment views", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return core.Wrap(core.ErrUpstream, opQuery, "increment views", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrPodcastNotFound, podcastID)
	}

	return nil
}

// Trending lists the most viewed podcasts, newest first among equals. A
// limit of zero or less lists all of them.
func (s *Store) Trending(ctx context.Context, limit int) ([]Podcast, error) {
	if limit <= 0 {
		limit = -1
	}

	return s.list(ctx, `ORDER BY views DESC, seq DESC LIMIT ?`, limit)
}

// SearchByTitle lists podcasts whose title contains search. An empty search
// lists every podcast, newest first.
func (s *Store) SearchByTitle(ctx context.Context, search string) ([]Podcast, error) {
	search = strings.TrimSpace(search)
	if search == "" {
		return s.list(ctx, `ORDER BY seq DESC`)
	}

	return s.list(ctx, `WHERE title LIKE ? ESCAPE '\' ORDER BY seq DESC`, "%"+escapeLike(search)+"%")
}

// ListByAuthor lists the podcasts of one author, newest first.
func (s *Store) ListByAuthor(ctx context.Context, authorID string) ([]Podcast, error) {
	return s.list(ctx, `WHERE author_id = ? ORDER BY seq DESC`, authorID)
}

// ListByVoice lists the other podcasts narrated with the same voice as
// podcastID.
func (s *Store) ListByVoice(ctx context.Context, podcastID string) ([]Podcast, error) {
	podcast, err := s.GetByID(ctx, podcastID)
	if err != nil {
		return nil, err
	}

	return s.list(ctx, `WHERE voice = ? AND id <> ? ORDER BY seq DESC`, string(podcast.Voice), podcastID)
}

func (s *Store) list(ctx context.Context, clause string, args ...any) ([]Podcast, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+podcastColumns+` FROM podcasts `+clause, args...)
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, opQuery, "", err)
	}

	defer func() { _ = rows.Close() }()

	var podcasts []Podcast

	for rows.Next() {
		podcast, scanErr := scanPodcast(rows)
		if scanErr != nil {
			return nil, core.Wrap(core.ErrUpstream, opQuery, "scan podcast", scanErr)
		}

		podcasts = append(podcasts, *podcast)
	}

	err = rows.Err()
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, opQuery, "", err)
	}

	return podcasts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPodcast(row scanner) (*Podcast, error) {
	var (
		podcast   Podcast
		voice     string
		createdAt string
	)

	err := row.Scan(
		&podcast.ID,
		&podcast.UserID,
		&podcast.Title,
		&podcast.Description,
		&podcast.AudioURL,
		&podcast.AudioStorageID,
		&podcast.ImageURL,
		&podcast.ImageStorageID,
		&podcast.Author,
		&podcast.AuthorID,
		&podcast.AuthorImageURL,
		&podcast.VoicePrompt,
		&podcast.ImagePrompt,
		&voice,
		&podcast.AudioDuration,
		&podcast.Views,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	podcast.Voice = core.Voice(voice)

	podcast.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &podcast, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
