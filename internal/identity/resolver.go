package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/session"
)

// placeholderBound marks ids too large to be server-assigned. Locally
// generated fallback ids are epoch-millisecond timestamps, which sit
// orders of magnitude above any real row id.
const placeholderBound = int64(1e12)

// Resolver recovers the durable (player, quiz) identity from storage,
// normalizing the loosely typed blob a previous screen left behind.
// No other component ever re-parses raw storage values.
type Resolver struct {
	store *session.Store
	log   *slog.Logger
}

func NewResolver(store *session.Store, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, log: log}
}

// rawIdentity accepts ids as JSON numbers or strings interchangeably.
// serverPlayerId is the authoritative fallback written by the join flow
// when the player id had to be provisionally generated client-side.
type rawIdentity struct {
	PlayerID       flexID `json:"playerId"`
	ServerPlayerID flexID `json:"serverPlayerId"`
	QuizID         flexID `json:"quizId"`
	Name           string `json:"name"`
	Avatar         string `json:"avatar"`
	Team           string `json:"team"`
}

// flexID unmarshals from either 42 or "42". Zero means absent.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("id %q is not numeric: %w", s, err)
		}
		*f = flexID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n)
	return nil
}

// Resolve reads, normalizes, and rewrites the session identity. It runs
// once at mount; every later component consumes the typed result.
func (r *Resolver) Resolve(ctx context.Context) (domain.Identity, error) {
	raw, ok, err := r.store.LoadRawIdentity(ctx)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("read identity: %w", err)
	}
	if !ok || len(raw) == 0 {
		return domain.Identity{}, domain.ErrIdentityMissing
	}

	var candidate rawIdentity
	if err := json.Unmarshal(raw, &candidate); err != nil {
		r.log.Warn("identity blob not decodable", "err", err)
		return domain.Identity{}, domain.ErrIdentityInvalid
	}

	playerID := int64(candidate.PlayerID)
	if playerID >= placeholderBound {
		// A timestamp-shaped id is a client-generated placeholder; use
		// the server-assigned value if the join flow stored one.
		if server := int64(candidate.ServerPlayerID); server > 0 && server < placeholderBound {
			r.log.Info("replacing placeholder player id", "placeholder", playerID, "serverId", server)
			playerID = server
		} else {
			r.log.Warn("player id is a placeholder with no server value", "playerId", playerID)
			return domain.Identity{}, domain.ErrIdentityInvalid
		}
	}

	id := domain.Identity{
		PlayerID: playerID,
		QuizID:   int64(candidate.QuizID),
		Name:     candidate.Name,
		Avatar:   candidate.Avatar,
		Team:     candidate.Team,
	}
	if !id.Valid() {
		return domain.Identity{}, domain.ErrIdentityInvalid
	}

	// Rewrite the normalized form so subsequent reads are consistent.
	if err := r.store.SaveIdentity(ctx, id); err != nil {
		r.log.Warn("could not rewrite normalized identity", "err", err)
	}
	return id, nil
}
