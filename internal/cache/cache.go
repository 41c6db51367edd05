package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soaringjerry/Archetype/internal/db"
	"github.com/soaringjerry/Archetype/internal/models"
)

// One durable namespace per entity type. The sync queue lives alongside the
// entities so pending work survives a restart.
const (
	nsRespondents = "respondents"
	nsSessions    = "sessions"
	nsAnswers     = "answers"
	nsOrders      = "orders"
	nsLogs        = "logs"
	nsShares      = "shares"
	nsQueue       = "sync-queue"
)

var allNamespaces = []string{nsRespondents, nsSessions, nsAnswers, nsOrders, nsLogs, nsShares, nsQueue}

// ErrCapacity is surfaced after an eviction pass and one retry both fail.
var ErrCapacity = errors.New("local store full after eviction retry")

const (
	// Behavior logs older than this are dropped first under pressure.
	defaultLogRetention = 7 * 24 * time.Hour
	// Completed sessions beyond the newest N are dropped second.
	defaultKeepCompleted = 10
)

// LocalCache owns every entity namespace and the sync queue. All mutations
// run a full read-modify-write cycle against the backend so a partial
// update is never observable.
type LocalCache struct {
	mu      sync.Mutex
	backend db.Backend
	logger  *zap.Logger

	now         func() time.Time
	idGenerator func() string

	logRetention  time.Duration
	keepCompleted int
}

// New builds a cache over the given backend.
func New(backend db.Backend, logger *zap.Logger) *LocalCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalCache{
		backend:       backend,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		idGenerator:   shortID,
		logRetention:  defaultLogRetention,
		keepCompleted: defaultKeepCompleted,
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (c *LocalCache) load(ns string, out any) error {
	doc, err := c.backend.Read(ns)
	if err != nil {
		return fmt.Errorf("load %s: %w", ns, err)
	}
	if len(doc) == 0 {
		return nil
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return fmt.Errorf("decode %s: %w", ns, err)
	}
	return nil
}

// write persists one namespace document. A capacity failure triggers a
// single eviction pass followed by exactly one retry.
func (c *LocalCache) write(ns string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ns, err)
	}
	err = c.backend.Write(ns, doc)
	if !errors.Is(err, db.ErrCapacity) {
		return err
	}
	c.logger.Warn("local store full, running eviction pass", zap.String("namespace", ns))
	c.evict()
	if err := c.backend.Write(ns, doc); err != nil {
		if errors.Is(err, db.ErrCapacity) {
			return ErrCapacity
		}
		return err
	}
	return nil
}

// evict reclaims space: behavior logs past the retention window go first,
// then completed sessions beyond the retained-count ceiling.
func (c *LocalCache) evict() {
	var logs []models.BehaviorLog
	if err := c.load(nsLogs, &logs); err == nil {
		cutoff := c.now().Add(-c.logRetention)
		kept := logs[:0]
		for _, l := range logs {
			if l.CreatedAt.After(cutoff) {
				kept = append(kept, l)
			}
		}
		if len(kept) < len(logs) {
			c.logger.Info("evicted old behavior logs", zap.Int("dropped", len(logs)-len(kept)))
			if doc, err := json.Marshal(kept); err == nil {
				_ = c.backend.Write(nsLogs, doc)
			}
		}
	}

	var sessions []models.TestSession
	if err := c.load(nsSessions, &sessions); err != nil {
		return
	}
	var completed []models.TestSession
	kept := make([]models.TestSession, 0, len(sessions))
	for _, s := range sessions {
		if s.Status == models.SessionCompleted {
			completed = append(completed, s)
		} else {
			kept = append(kept, s)
		}
	}
	if len(completed) <= c.keepCompleted {
		return
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].CreatedAt.After(completed[j].CreatedAt) })
	kept = append(kept, completed[:c.keepCompleted]...)
	c.logger.Info("evicted old completed sessions", zap.Int("dropped", len(completed)-c.keepCompleted))
	if doc, err := json.Marshal(kept); err == nil {
		_ = c.backend.Write(nsSessions, doc)
	}
}

// --- respondents ---

// CreateRespondent assigns a locally-unique id and timestamps.
func (c *LocalCache) CreateRespondent(r *models.Respondent) (*models.Respondent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.Respondent
	if err := c.load(nsRespondents, &all); err != nil {
		return nil, err
	}
	rec := *r
	if rec.ID == "" {
		rec.ID = c.idGenerator()
	}
	now := c.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	all = append(all, rec)
	if err := c.write(nsRespondents, all); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *LocalCache) GetRespondent(id string) (*models.Respondent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.Respondent
	if err := c.load(nsRespondents, &all); err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			rec := all[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// RespondentUpdate is the closed set of fields a profile edit may change.
type RespondentUpdate struct {
	Nickname *string
	Contact  *string
	AgeRange *string
	Gender   *string
	Status   *int
}

// UpdateRespondent merges only the provided fields and bumps UpdatedAt.
func (c *LocalCache) UpdateRespondent(id string, upd RespondentUpdate) (*models.Respondent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.Respondent
	if err := c.load(nsRespondents, &all); err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID != id {
			continue
		}
		r := &all[i]
		if upd.Nickname != nil {
			r.Nickname = *upd.Nickname
		}
		if upd.Contact != nil {
			r.Contact = *upd.Contact
		}
		if upd.AgeRange != nil {
			r.AgeRange = *upd.AgeRange
		}
		if upd.Gender != nil {
			r.Gender = *upd.Gender
		}
		if upd.Status != nil {
			r.Status = *upd.Status
		}
		r.UpdatedAt = c.now()
		if err := c.write(nsRespondents, all); err != nil {
			return nil, err
		}
		rec := *r
		return &rec, nil
	}
	return nil, nil
}

// MirrorRespondent replaces (or inserts) the local copy with the remote
// record, keeping the cache usable as a read model.
func (c *LocalCache) MirrorRespondent(r *models.Respondent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.Respondent
	if err := c.load(nsRespondents, &all); err != nil {
		return err
	}
	for i := range all {
		if all[i].ID == r.ID {
			all[i] = *r
			return c.write(nsRespondents, all)
		}
	}
	all = append(all, *r)
	return c.write(nsRespondents, all)
}

// --- sessions ---

func (c *LocalCache) CreateSession(s *models.TestSession) (*models.TestSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.TestSession
	if err := c.load(nsSessions, &all); err != nil {
		return nil, err
	}
	rec := *s
	if rec.ID == "" {
		rec.ID = c.idGenerator()
	}
	now := c.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	all = append(all, rec)
	if err := c.write(nsSessions, all); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *LocalCache) GetSession(id string) (*models.TestSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.TestSession
	if err := c.load(nsSessions, &all); err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			rec := all[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (c *LocalCache) SessionsByRespondent(respondentID string) ([]models.TestSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.TestSession
	if err := c.load(nsSessions, &all); err != nil {
		return nil, err
	}
	out := make([]models.TestSession, 0, len(all))
	for _, s := range all {
		if s.RespondentID == respondentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *LocalCache) ListSessions() ([]models.TestSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.TestSession
	if err := c.load(nsSessions, &all); err != nil {
		return nil, err
	}
	return all, nil
}

// SessionUpdate is the closed set of session fields this layer may change.
type SessionUpdate struct {
	Status        *int
	AnsweredCount *int
	CurrentIndex  *int
	TimeSpentSec  *int
	AvgTimePerQ   *float64
	ResultType    *string
	ShadowType    *string
	AxisScores    map[string]float64
	AxisPercent   map[string]int
	Confidence    *float64
	CompletedAt   *time.Time
}

func (c *LocalCache) UpdateSession(id string, upd SessionUpdate) (*models.TestSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.TestSession
	if err := c.load(nsSessions, &all); err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID != id {
			continue
		}
		s := &all[i]
		if upd.Status != nil {
			s.Status = *upd.Status
		}
		if upd.AnsweredCount != nil {
			s.AnsweredCount = *upd.AnsweredCount
		}
		if upd.CurrentIndex != nil {
			s.CurrentIndex = *upd.CurrentIndex
		}
		if upd.TimeSpentSec != nil {
			s.TimeSpentSec = *upd.TimeSpentSec
		}
		if upd.AvgTimePerQ != nil {
			s.AvgTimePerQ = *upd.AvgTimePerQ
		}
		if upd.ResultType != nil {
			s.ResultType = *upd.ResultType
		}
		if upd.ShadowType != nil {
			s.ShadowType = *upd.ShadowType
		}
		if upd.AxisScores != nil {
			s.AxisScores = upd.AxisScores
		}
		if upd.AxisPercent != nil {
			s.AxisPercent = upd.AxisPercent
		}
		if upd.Confidence != nil {
			s.Confidence = *upd.Confidence
		}
		if upd.CompletedAt != nil {
			s.CompletedAt = upd.CompletedAt
		}
		s.UpdatedAt = c.now()
		if err := c.write(nsSessions, all); err != nil {
			return nil, err
		}
		rec := *s
		return &rec, nil
	}
	return nil, nil
}

func (c *LocalCache) MirrorSession(s *models.TestSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.TestSession
	if err := c.load(nsSessions, &all); err != nil {
		return err
	}
	for i := range all {
		if all[i].ID == s.ID {
			all[i] = *s
			return c.write(nsSessions, all)
		}
	}
	all = append(all, *s)
	return c.write(nsSessions, all)
}

// --- answers ---

// SaveAnswer upserts by (session, question index). A resubmission for an
// already-answered slot overwrites in place, snapshots the previous option
// and bumps the change counter; it never inserts a second record.
func (c *LocalCache) SaveAnswer(a *models.AnswerRecord) (*models.AnswerRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.AnswerRecord
	if err := c.load(nsAnswers, &all); err != nil {
		return nil, err
	}
	now := c.now()
	for i := range all {
		if all[i].SessionID != a.SessionID || all[i].QuestionIndex != a.QuestionIndex {
			continue
		}
		prev := all[i].OptionIndex
		existing := &all[i]
		existing.OptionIndex = a.OptionIndex
		existing.OptionText = a.OptionText
		existing.Score = a.Score
		existing.TimeSpentSec = a.TimeSpentSec
		existing.Changed = true
		existing.ChangeCount++
		existing.PreviousIndex = &prev
		existing.AnsweredAt = now
		if err := c.write(nsAnswers, all); err != nil {
			return nil, err
		}
		rec := *existing
		return &rec, nil
	}
	rec := *a
	if rec.ID == "" {
		rec.ID = c.idGenerator()
	}
	rec.AnsweredAt = now
	all = append(all, rec)
	if err := c.write(nsAnswers, all); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *LocalCache) AnswersBySession(sessionID string) ([]models.AnswerRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.AnswerRecord
	if err := c.load(nsAnswers, &all); err != nil {
		return nil, err
	}
	out := make([]models.AnswerRecord, 0, len(all))
	for _, a := range all {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionIndex < out[j].QuestionIndex })
	return out, nil
}

func (c *LocalCache) DeleteAnswer(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.AnswerRecord
	if err := c.load(nsAnswers, &all); err != nil {
		return false, err
	}
	for i := range all {
		if all[i].ID == id {
			all = append(all[:i], all[i+1:]...)
			if err := c.write(nsAnswers, all); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// --- orders ---

func (c *LocalCache) CreateOrder(o *models.PaymentOrder) (*models.PaymentOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.PaymentOrder
	if err := c.load(nsOrders, &all); err != nil {
		return nil, err
	}
	rec := *o
	if rec.ID == "" {
		rec.ID = c.idGenerator()
	}
	if rec.Status == "" {
		rec.Status = models.OrderPending
	}
	now := c.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	all = append(all, rec)
	if err := c.write(nsOrders, all); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *LocalCache) GetOrder(id string) (*models.PaymentOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.PaymentOrder
	if err := c.load(nsOrders, &all); err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			rec := all[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// OrderUpdate carries gateway-confirmed outcome fields.
type OrderUpdate struct {
	Status         *string
	GatewayOrderID *string
	GatewayTradeNo *string
}

func (c *LocalCache) UpdateOrder(id string, upd OrderUpdate) (*models.PaymentOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.PaymentOrder
	if err := c.load(nsOrders, &all); err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID != id {
			continue
		}
		o := &all[i]
		if upd.Status != nil {
			o.Status = *upd.Status
		}
		if upd.GatewayOrderID != nil {
			o.GatewayOrderID = *upd.GatewayOrderID
		}
		if upd.GatewayTradeNo != nil {
			o.GatewayTradeNo = *upd.GatewayTradeNo
		}
		o.UpdatedAt = c.now()
		if err := c.write(nsOrders, all); err != nil {
			return nil, err
		}
		rec := *o
		return &rec, nil
	}
	return nil, nil
}

// --- behavior logs ---

// AppendLog creates a telemetry entry. Logs are append-only.
func (c *LocalCache) AppendLog(l *models.BehaviorLog) (*models.BehaviorLog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.BehaviorLog
	if err := c.load(nsLogs, &all); err != nil {
		return nil, err
	}
	rec := *l
	if rec.ID == "" {
		rec.ID = c.idGenerator()
	}
	rec.CreatedAt = c.now()
	all = append(all, rec)
	if err := c.write(nsLogs, all); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *LocalCache) LogsByRespondent(respondentID string, limit int) ([]models.BehaviorLog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.BehaviorLog
	if err := c.load(nsLogs, &all); err != nil {
		return nil, err
	}
	out := make([]models.BehaviorLog, 0, len(all))
	for _, l := range all {
		if l.RespondentID == respondentID {
			out = append(out, l)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// --- shares ---

func (c *LocalCache) CreateShare(s *models.ShareRecord) (*models.ShareRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.ShareRecord
	if err := c.load(nsShares, &all); err != nil {
		return nil, err
	}
	rec := *s
	if rec.ID == "" {
		rec.ID = c.idGenerator()
	}
	rec.CreatedAt = c.now()
	all = append(all, rec)
	if err := c.write(nsShares, all); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *LocalCache) GetShare(id string) (*models.ShareRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.ShareRecord
	if err := c.load(nsShares, &all); err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			rec := all[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// Share event kinds accepted by IncrementShare.
const (
	ShareView       = "view"
	ShareClick      = "click"
	ShareConversion = "conversion"
)

// IncrementShare bumps one counter on an existing share record.
func (c *LocalCache) IncrementShare(id, kind string) (*models.ShareRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.ShareRecord
	if err := c.load(nsShares, &all); err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID != id {
			continue
		}
		s := &all[i]
		switch kind {
		case ShareView:
			s.Views++
		case ShareClick:
			s.Clicks++
		case ShareConversion:
			s.Conversions++
		default:
			return nil, fmt.Errorf("unknown share event kind %q", kind)
		}
		if err := c.write(nsShares, all); err != nil {
			return nil, err
		}
		rec := *s
		return &rec, nil
	}
	return nil, nil
}

// --- sync queue ---

func (c *LocalCache) LoadQueue() ([]models.SyncEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var q []models.SyncEntry
	if err := c.load(nsQueue, &q); err != nil {
		return nil, err
	}
	return q, nil
}

func (c *LocalCache) SaveQueue(q []models.SyncEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q == nil {
		q = []models.SyncEntry{}
	}
	return c.write(nsQueue, q)
}

// --- backup ---

// Snapshot is the whole-store backup document: one field per namespace.
type Snapshot struct {
	Respondents []models.Respondent  `json:"respondents"`
	Sessions    []models.TestSession `json:"sessions"`
	Answers     []models.AnswerRecord `json:"answers"`
	Orders      []models.PaymentOrder `json:"orders"`
	Logs        []models.BehaviorLog  `json:"logs"`
	Shares      []models.ShareRecord  `json:"shares"`
	Queue       []models.SyncEntry    `json:"sync_queue"`
}

// ExportAll captures every namespace into a single snapshot.
func (c *LocalCache) ExportAll() (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &Snapshot{}
	steps := []struct {
		ns  string
		out any
	}{
		{nsRespondents, &s.Respondents},
		{nsSessions, &s.Sessions},
		{nsAnswers, &s.Answers},
		{nsOrders, &s.Orders},
		{nsLogs, &s.Logs},
		{nsShares, &s.Shares},
		{nsQueue, &s.Queue},
	}
	for _, step := range steps {
		if err := c.load(step.ns, step.out); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ImportAll performs a full namespace replace from a snapshot.
func (c *LocalCache) ImportAll(s *Snapshot) error {
	if s == nil {
		return errors.New("nil snapshot")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	steps := []struct {
		ns string
		v  any
	}{
		{nsRespondents, s.Respondents},
		{nsSessions, s.Sessions},
		{nsAnswers, s.Answers},
		{nsOrders, s.Orders},
		{nsLogs, s.Logs},
		{nsShares, s.Shares},
		{nsQueue, s.Queue},
	}
	for _, step := range steps {
		if err := c.write(step.ns, step.v); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports per-namespace record counts.
type Stats struct {
	Respondents int `json:"respondents"`
	Sessions    int `json:"sessions"`
	Answers     int `json:"answers"`
	Orders      int `json:"orders"`
	Logs        int `json:"logs"`
	Shares      int `json:"shares"`
	Queue       int `json:"sync_queue"`
}

func (c *LocalCache) Stats() (*Stats, error) {
	snap, err := c.ExportAll()
	if err != nil {
		return nil, err
	}
	return &Stats{
		Respondents: len(snap.Respondents),
		Sessions:    len(snap.Sessions),
		Answers:     len(snap.Answers),
		Orders:      len(snap.Orders),
		Logs:        len(snap.Logs),
		Shares:      len(snap.Shares),
		Queue:       len(snap.Queue),
	}, nil
}

// Clear empties every namespace.
func (c *LocalCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ns := range allNamespaces {
		if err := c.write(ns, []json.RawMessage{}); err != nil {
			return err
		}
	}
	return nil
}
