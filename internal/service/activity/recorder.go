package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nikhil/saasbase/internal/logger"
	"github.com/nikhil/saasbase/internal/models"
)

type Store interface {
	Insert(ctx context.Context, log models.ActivityLog) error
}

// Publisher fans a serialized event out to live clients of a team.
type Publisher interface {
	BroadcastToTeam(teamID string, message []byte) int
}

// Recorder writes audit rows and forwards them to the live feed.
type Recorder struct {
	store Store
	hub   Publisher
	now   func() time.Time
	newID func() string
	log   *logger.Logger
}

func NewRecorder(store Store, hub Publisher, log *logger.Logger) *Recorder {
	return &Recorder{
		store: store,
		hub:   hub,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
		log:   log.Named("activity"),
	}
}

// WithClock returns a copy of r reading time from now.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	c := *r
	c.now = now
	return &c
}

// Append inserts one activity row without publishing it. An empty teamID is
// a no-op and yields a nil row. Storage failures are returned unchanged so a
// surrounding transaction rolls back.
func (r *Recorder) Append(ctx context.Context, teamID, userID string, action models.ActivityType, ip string) (*models.ActivityLog, error) {
	if teamID == "" {
		return nil, nil
	}

	entry := models.ActivityLog{
		ID:        r.newID(),
		TeamID:    teamID,
		UserID:    optional(userID),
		Action:    action,
		IPAddress: optional(ip),
		CreatedAt: r.now(),
	}
	if err := r.store.Insert(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Publish pushes committed rows to the team's feed clients. Nil rows are
// skipped.
func (r *Recorder) Publish(entries ...*models.ActivityLog) {
	if r.hub == nil {
		return
	}
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		msg, err := json.Marshal(models.FeedMessage{Type: "activity", TeamID: entry.TeamID, Activity: *entry})
		if err != nil {
			r.log.Error("Failed to encode activity event", "error", err, "activity_id", entry.ID)
			continue
		}
		delivered := r.hub.BroadcastToTeam(entry.TeamID, msg)
		r.log.Debug("Activity published", "team_id", entry.TeamID, "action", entry.Action, "clients", delivered)
	}
}

// Record appends and immediately publishes. Use Append plus Publish inside
// transactions.
func (r *Recorder) Record(ctx context.Context, teamID, userID string, action models.ActivityType, ip string) error {
	entry, err := r.Append(ctx, teamID, userID, action, ip)
	if err != nil {
		return err
	}
	r.Publish(entry)
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
