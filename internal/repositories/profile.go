package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/sqlite"
)

type ProfileRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewProfileRepository(db *sqlite.Database, logger *slog.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger.With("source", "ProfileRepository"),
	}
}

type profileRow struct {
	Niche      string `db:"niche"`
	Experience string `db:"experience"`
	Discovery  string `db:"discovery"`
}

// Get returns the user's profile. Users without a stored profile get a fresh one.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (models.Profile, error) {
	var (
		row     profileRow
		profile = models.Profile{Niche: "", Experience: "", Discovery: models.NewDiscoveryState()}
		err     error
	)
	stmt := `SELECT niche, experience, discovery FROM profiles WHERE user_id = ?`
	if err = r.db.ReadOnly.GetContext(ctx, &row, stmt, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return profile, nil
		}
		return profile, errors.Wrap(err, "select profile")
	}
	profile.Niche = row.Niche
	profile.Experience = row.Experience
	if err = json.Unmarshal([]byte(row.Discovery), &profile.Discovery); err != nil {
		// A corrupt discovery state restarts the questionnaire rather than locking the user out.
		r.logger.LogAttrs(ctx, slog.LevelWarn, "discarding unreadable discovery state",
			errors.SlogError(errors.Wrap(err, "decode discovery state")))
		profile.Discovery = models.NewDiscoveryState()
	}
	if profile.Discovery.Answers == nil {
		profile.Discovery.Answers = map[string]models.AnswerValue{}
	}
	return profile, nil
}

// Upsert stores the user's profile.
func (r *ProfileRepository) Upsert(ctx context.Context, userID string, profile models.Profile) error {
	discovery, err := json.Marshal(profile.Discovery)
	if err != nil {
		return errors.Wrap(err, "encode discovery state")
	}
	stmt := `INSERT INTO profiles (user_id, niche, experience, discovery)
VALUES (:user_id, :niche, :experience, :discovery)
ON CONFLICT (user_id) DO UPDATE SET niche = excluded.niche,
                                    experience = excluded.experience,
                                    discovery = excluded.discovery`
	if _, err = r.db.ReadWrite.ExecContext(ctx, stmt,
		sql.Named("user_id", userID),
		sql.Named("niche", profile.Niche),
		sql.Named("experience", profile.Experience),
		sql.Named("discovery", string(discovery)),
	); err != nil {
		return errors.Wrap(err, "upsert profile")
	}
	return nil
}
