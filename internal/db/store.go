package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Channel name prefixes for the three per-key pub/sub channels.
const (
	ChannelGameStatus        = "game_status_"
	ChannelChat              = "chat_"
	ChannelOpponentConnected = "opponent_connected_"
)

const uniqueViolation = "23505"

// createKeyAttempts bounds key regeneration when an insert collides
// with an existing key.
const createKeyAttempts = 5

// JoinStatus is the outcome of a join_game call.
type JoinStatus string

const (
	JoinDNE     JoinStatus = "dne"
	JoinInUse   JoinStatus = "in_use"
	JoinSuccess JoinStatus = "success"
)

// JoinResult carries the key pair on success.
type JoinResult struct {
	Status   JoinStatus
	WhiteKey string
	BlackKey string
}

// GameStatus is the stored game row as seen by a session.
type GameStatus struct {
	Data       []byte
	TimePlayed float64
	Version    int
}

// ChatMessage is one chat row.
type ChatMessage struct {
	ID      int64
	Stamp   float64
	Color   string
	Message string
}

// CreateGameParams parameterizes new_game. JoiningColor is empty when
// the creator does not immediately claim a side (AI-vs-AI setups).
type CreateGameParams struct {
	Data           []byte
	JoiningColor   string
	ManagerID      string
	UnsubscribeKey string
	AISecretWhite  string
	AISecretBlack  string
}

// CreateGameResult reports the minted pair and the new game id.
type CreateGameResult struct {
	GameID   int64
	WhiteKey string
	BlackKey string
}

// Store routes every mutation through the stored functions installed
// by the migrations; no ad hoc SQL runs from the session layer.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store gateway on the shared pool.
func NewStore(database *DB) *Store {
	return &Store{pool: database.Pool()}
}

// CreateGame mints a fresh key pair and runs new_game, retrying with
// new keys if the insert collides with an existing one.
func (s *Store) CreateGame(ctx context.Context, p CreateGameParams) (CreateGameResult, error) {
	for attempt := 0; ; attempt++ {
		whiteKey, err := GenerateKey()
		if err != nil {
			return CreateGameResult{}, err
		}
		blackKey, err := GenerateKey()
		if err != nil {
			return CreateGameResult{}, err
		}

		var gameID int64
		err = s.withRetry(ctx, func() error {
			return s.pool.QueryRow(ctx,
				`SELECT new_game($1, $2, $3, $4, $5, $6, $7, $8)`,
				p.Data, whiteKey, blackKey,
				nullIfEmpty(p.JoiningColor), nullIfEmpty(p.ManagerID),
				nullIfEmpty(p.UnsubscribeKey),
				nullIfEmpty(p.AISecretWhite), nullIfEmpty(p.AISecretBlack),
			).Scan(&gameID)
		})
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && attempt < createKeyAttempts {
				continue
			}
			return CreateGameResult{}, fmt.Errorf("creating game: %w", err)
		}
		return CreateGameResult{GameID: gameID, WhiteKey: whiteKey, BlackKey: blackKey}, nil
	}
}

// JoinGame claims a key for this server process.
func (s *Store) JoinGame(ctx context.Context, key, managerID, aiSecret string) (JoinResult, error) {
	var (
		status             string
		whiteKey, blackKey *string
	)
	err := s.withRetry(ctx, func() error {
		return s.pool.QueryRow(ctx,
			`SELECT status, white_key, black_key FROM join_game($1, $2, $3)`,
			key, managerID, nullIfEmpty(aiSecret),
		).Scan(&status, &whiteKey, &blackKey)
	})
	if err != nil {
		return JoinResult{}, fmt.Errorf("joining game with key %q: %w", key, err)
	}
	res := JoinResult{Status: JoinStatus(status)}
	if whiteKey != nil {
		res.WhiteKey = *whiteKey
	}
	if blackKey != nil {
		res.BlackKey = *blackKey
	}
	return res, nil
}

// WriteGame attempts the optimistic write of version. It returns the
// new time_played, or nil when the version check failed and the
// caller must re-sync.
func (s *Store) WriteGame(ctx context.Context, key string, data []byte, version int) (*float64, error) {
	var played *float64
	err := s.pool.QueryRow(ctx,
		`SELECT write_game($1, $2, $3)`, key, data, version,
	).Scan(&played)
	if err != nil {
		return nil, fmt.Errorf("writing game for key %q: %w", key, err)
	}
	return played, nil
}

// WriteChat stores a message with a server-supplied timestamp and
// returns the assigned id.
func (s *Store) WriteChat(ctx context.Context, stamp float64, message, key string) (int64, error) {
	var id *int64
	err := s.pool.QueryRow(ctx,
		`SELECT write_chat($1, $2, $3)`, stamp, message, key,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("writing chat for key %q: %w", key, err)
	}
	if id == nil {
		return 0, fmt.Errorf("writing chat: key %q does not exist", key)
	}
	return *id, nil
}

// Unsubscribe releases a key if this process still holds it.
func (s *Store) Unsubscribe(ctx context.Context, key, managerID string) (bool, error) {
	var released bool
	err := s.pool.QueryRow(ctx,
		`SELECT unsubscribe($1, $2)`, key, managerID,
	).Scan(&released)
	if err != nil {
		return false, fmt.Errorf("unsubscribing key %q: %w", key, err)
	}
	return released, nil
}

// GetGameStatus loads the blob, elapsed time and version for a key.
// Returns nil when the key does not resolve to a game.
func (s *Store) GetGameStatus(ctx context.Context, key string) (*GameStatus, error) {
	var st GameStatus
	err := s.withRetry(ctx, func() error {
		return s.pool.QueryRow(ctx,
			`SELECT data, time_played, version FROM get_game_status($1)`, key,
		).Scan(&st.Data, &st.TimePlayed, &st.Version)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting game status for key %q: %w", key, err)
	}
	return &st, nil
}

// GetChatUpdates returns the whole chat log for the key's game, or
// just the row with the given id when id is non-nil.
func (s *Store) GetChatUpdates(ctx context.Context, key string, id *int64) ([]ChatMessage, error) {
	var out []ChatMessage
	err := s.withRetry(ctx, func() error {
		rows, err := s.pool.Query(ctx,
			`SELECT id, stamp, color, message FROM get_chat_updates($1, $2)`, key, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var m ChatMessage
			if err := rows.Scan(&m.ID, &m.Stamp, &m.Color, &m.Message); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("getting chat updates for key %q: %w", key, err)
	}
	return out, nil
}

// GetOpponentConnected reports whether any process manages the
// opponent's key.
func (s *Store) GetOpponentConnected(ctx context.Context, key string) (bool, error) {
	var connected *bool
	err := s.withRetry(ctx, func() error {
		return s.pool.QueryRow(ctx,
			`SELECT get_opponent_connected($1)`, key,
		).Scan(&connected)
	})
	if err != nil {
		return false, fmt.Errorf("getting opponent status for key %q: %w", key, err)
	}
	return connected != nil && *connected, nil
}

// Cleanup releases every key still held under managerID. Run at
// startup so keys orphaned by a crash become joinable again.
func (s *Store) Cleanup(ctx context.Context, managerID string) (int, error) {
	var released int
	err := s.pool.QueryRow(ctx,
		`SELECT do_cleanup($1)`, managerID,
	).Scan(&released)
	if err != nil {
		return 0, fmt.Errorf("cleaning up manager %q: %w", managerID, err)
	}
	return released, nil
}

// TriggerUpdateAll re-notifies every managed key's game_status
// channel.
func (s *Store) TriggerUpdateAll(ctx context.Context) (int, error) {
	var notified int
	err := s.pool.QueryRow(ctx, `SELECT trigger_update_all()`).Scan(&notified)
	if err != nil {
		return 0, fmt.Errorf("triggering update all: %w", err)
	}
	return notified, nil
}

// withRetry runs fn with bounded exponential backoff for transient
// store failures. CreateGame, JoinGame and the reads use it; WriteGame,
// WriteChat, Unsubscribe, Cleanup and TriggerUpdateAll call the store
// once without retrying.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	const attempts = 3
	delay := 100 * time.Millisecond

	var err error
	for i := range attempts {
		if err = fn(); err == nil || errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if !transient(err) || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// transient reports whether an error is worth a blind retry: network
// trouble, serialization failures and deadlocks. Other SQL errors are
// deterministic and retried never.
func transient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return true
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
