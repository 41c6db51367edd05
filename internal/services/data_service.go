package services

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/Archetype/internal/cache"
	"github.com/soaringjerry/Archetype/internal/models"
	"github.com/soaringjerry/Archetype/internal/remote"
	"github.com/soaringjerry/Archetype/internal/scoring"
	"github.com/soaringjerry/Archetype/internal/syncq"
	"github.com/soaringjerry/Archetype/internal/utils"
)

// RemoteAPI is the slice of the remote client the facade depends on.
type RemoteAPI interface {
	CreateRespondent(ctx context.Context, r *models.Respondent) (*models.Respondent, error)
	GetRespondent(ctx context.Context, id string) (*models.Respondent, error)
	UpdateRespondent(ctx context.Context, r *models.Respondent) (*models.Respondent, error)

	CreateSession(ctx context.Context, s *models.TestSession) (*models.TestSession, error)
	GetSession(ctx context.Context, id string) (*models.TestSession, error)
	UpdateSession(ctx context.Context, s *models.TestSession) (*models.TestSession, error)
	SessionsByRespondent(ctx context.Context, respondentID string) ([]models.TestSession, error)

	SaveAnswer(ctx context.Context, a *models.AnswerRecord) (*models.AnswerRecord, error)
	SessionAnswers(ctx context.Context, sessionID string) ([]models.AnswerRecord, error)
	DeleteAnswer(ctx context.Context, id string) error

	CreateOrder(ctx context.Context, o *models.PaymentOrder) (*models.PaymentOrder, error)
	GetOrder(ctx context.Context, id string) (*models.PaymentOrder, error)
	UpdateOrder(ctx context.Context, o *models.PaymentOrder) (*models.PaymentOrder, error)

	CreateLog(ctx context.Context, l *models.BehaviorLog) (*models.BehaviorLog, error)
	LogsByRespondent(ctx context.Context, respondentID string, limit int) ([]models.BehaviorLog, error)

	CreateShare(ctx context.Context, s *models.ShareRecord) (*models.ShareRecord, error)
	GetShare(ctx context.Context, id string) (*models.ShareRecord, error)
	UpdateShare(ctx context.Context, s *models.ShareRecord) (*models.ShareRecord, error)

	Beacon(path string, payload any)
}

// Queue is the sync engine surface the facade uses.
type Queue interface {
	Enqueue(ctx context.Context, entity, op string, payload any) error
	Flush(ctx context.Context)
	Len() (int, error)
}

const (
	defaultDebounceWindow = 2 * time.Second
	defaultBatchEvery     = 10
)

// DataService is the single entry point for the application: every
// operation lands in the local store immediately and reaches the system of
// record either directly, via the sync queue, or not at all when
// permanently rejected.
type DataService struct {
	cache   *cache.LocalCache
	remote  RemoteAPI
	queue   Queue
	monitor syncq.NetworkMonitor
	scorer  *scoring.Engine
	logger  *zap.Logger

	now          func() time.Time
	scheduleOnce func(time.Duration, func()) func()

	debounceWindow time.Duration
	batchEvery     int

	mu          sync.Mutex
	pending     []pendingSlot
	cancelTimer func()
}

// DataOption customizes a DataService.
type DataOption func(*DataService)

func WithDebounceWindow(d time.Duration) DataOption {
	return func(s *DataService) { s.debounceWindow = d }
}

func WithBatchEvery(n int) DataOption { return func(s *DataService) { s.batchEvery = n } }

func NewDataService(c *cache.LocalCache, api RemoteAPI, queue Queue, monitor syncq.NetworkMonitor, scorer *scoring.Engine, logger *zap.Logger, opts ...DataOption) *DataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DataService{
		cache:   c,
		remote:  api,
		queue:   queue,
		monitor: monitor,
		scorer:  scorer,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		scheduleOnce: func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		},
		debounceWindow: defaultDebounceWindow,
		batchEvery:     defaultBatchEvery,
	}
	for _, opt := range opts {
		opt(s)
	}
	monitor.OnTerminate(s.handleTerminate)
	return s
}

// Online reports current connectivity.
func (s *DataService) Online() bool { return s.monitor.IsOnline() }

// QueueLength reports pending sync mutations.
func (s *DataService) QueueLength() (int, error) { return s.queue.Len() }

// pushOrQueue tries immediate delivery and falls back to the queue on
// transient failure. A permanent remote rejection leaves the record
// local-only; the local write already succeeded and is never rolled back.
func (s *DataService) pushOrQueue(ctx context.Context, entity, op string, payload any, send func(context.Context) error) {
	if !s.monitor.IsOnline() {
		s.enqueue(ctx, entity, op, payload)
		return
	}
	if err := send(ctx); err != nil {
		if remote.IsTransient(err) {
			s.enqueue(ctx, entity, op, payload)
			return
		}
		s.logger.Warn("remote rejected mutation, record stays local",
			zap.String("entity", entity), zap.String("op", op), zap.Error(err))
	}
}

func (s *DataService) enqueue(ctx context.Context, entity, op string, payload any) {
	if err := s.queue.Enqueue(ctx, entity, op, payload); err != nil {
		s.logger.Error("enqueue mutation", zap.String("entity", entity), zap.String("op", op), zap.Error(err))
	}
}

func mapCacheErr(err error) error {
	if errors.Is(err, cache.ErrCapacity) {
		return NewCapacityError("local store full")
	}
	return err
}

// --- respondents ---

func (s *DataService) CreateRespondent(ctx context.Context, r *models.Respondent) (*models.Respondent, error) {
	if r.DeviceFingerprint == "" {
		r.DeviceFingerprint = utils.DeviceFingerprint(runtime.GOOS, runtime.GOARCH, r.UserAgent)
	}
	rec, err := s.cache.CreateRespondent(r)
	if err != nil {
		return nil, mapCacheErr(err)
	}
	s.pushOrQueue(ctx, models.EntityRespondent, models.OpCreate, rec, func(ctx context.Context) error {
		srv, err := s.remote.CreateRespondent(ctx, rec)
		if err != nil {
			return err
		}
		if srv != nil {
			rec = srv
			return s.cache.MirrorRespondent(srv)
		}
		return nil
	})
	return rec, nil
}

func (s *DataService) GetRespondent(ctx context.Context, id string) (*models.Respondent, error) {
	if s.monitor.IsOnline() {
		if srv, err := s.remote.GetRespondent(ctx, id); err == nil {
			if err := s.cache.MirrorRespondent(srv); err != nil {
				s.logger.Warn("mirror respondent", zap.Error(err))
			}
			return srv, nil
		} else {
			s.logger.Debug("remote read failed, serving local mirror", zap.Error(err))
		}
	}
	rec, err := s.cache.GetRespondent(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, NewNotFoundError("respondent not found")
	}
	return rec, nil
}

func (s *DataService) UpdateRespondent(ctx context.Context, id string, upd cache.RespondentUpdate) (*models.Respondent, error) {
	rec, err := s.cache.UpdateRespondent(id, upd)
	if err != nil {
		return nil, mapCacheErr(err)
	}
	if rec == nil {
		return nil, NewNotFoundError("respondent not found")
	}
	s.pushOrQueue(ctx, models.EntityRespondent, models.OpUpdate, rec, func(ctx context.Context) error {
		_, err := s.remote.UpdateRespondent(ctx, rec)
		return err
	})
	return rec, nil
}

// --- sessions ---

// StartSession opens a run through the questionnaire. The question total
// defaults to the engine's pool size.
func (s *DataService) StartSession(ctx context.Context, sess *models.TestSession) (*models.TestSession, error) {
	if sess.RespondentID == "" {
		return nil, NewInvalidError("respondent id required")
	}
	sess.Status = models.SessionInProgress
	if sess.TotalQuestions == 0 {
		sess.TotalQuestions = s.scorer.Questions()
	}
	rec, err := s.cache.CreateSession(sess)
	if err != nil {
		return nil, mapCacheErr(err)
	}
	s.pushOrQueue(ctx, models.EntitySession, models.OpCreate, rec, func(ctx context.Context) error {
		srv, err := s.remote.CreateSession(ctx, rec)
		if err != nil {
			return err
		}
		if srv != nil {
			rec = srv
			return s.cache.MirrorSession(srv)
		}
		return nil
	})
	return rec, nil
}

func (s *DataService) GetSession(ctx context.Context, id string) (*models.TestSession, error) {
	if s.monitor.IsOnline() {
		if srv, err := s.remote.GetSession(ctx, id); err == nil {
			if err := s.cache.MirrorSession(srv); err != nil {
				s.logger.Warn("mirror session", zap.Error(err))
			}
			return srv, nil
		} else {
			s.logger.Debug("remote read failed, serving local mirror", zap.Error(err))
		}
	}
	rec, err := s.cache.GetSession(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, NewNotFoundError("session not found")
	}
	return rec, nil
}

// UpdateSession changes progress fields on an in-progress session. Status
// moves only through CompleteSession and AbandonSession.
func (s *DataService) UpdateSession(ctx context.Context, id string, upd cache.SessionUpdate) (*models.TestSession, error) {
	if upd.Status != nil {
		return nil, NewInvalidError("status changes go through complete or abandon")
	}
	sess, err := s.cache.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	if sess.Status != models.SessionInProgress {
		return nil, NewConflictError("session already terminal")
	}
	rec, err := s.cache.UpdateSession(id, upd)
	if err != nil {
		return nil, mapCacheErr(err)
	}
	s.pushOrQueue(ctx, models.EntitySession, models.OpUpdate, rec, func(ctx context.Context) error {
		_, err := s.remote.UpdateSession(ctx, rec)
		return err
	})
	return rec, nil
}

func (s *DataService) RespondentSessions(ctx context.Context, respondentID string) ([]models.TestSession, error) {
	if s.monitor.IsOnline() {
		if list, err := s.remote.SessionsByRespondent(ctx, respondentID); err == nil {
			for i := range list {
				if err := s.cache.MirrorSession(&list[i]); err != nil {
					s.logger.Warn("mirror session", zap.Error(err))
					break
				}
			}
			return list, nil
		}
	}
	return s.cache.SessionsByRespondent(respondentID)
}

// History lists a respondent's sessions newest-first.
func (s *DataService) History(ctx context.Context, respondentID string) ([]models.TestSession, error) {
	list, err := s.RespondentSessions(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// --- answers ---

// SaveAnswer records one answer locally at once and schedules the remote
// push: pushes are debounced behind a quiet window, with a forced flush
// every Nth pending answer so long runs still checkpoint.
func (s *DataService) SaveAnswer(ctx context.Context, a *models.AnswerRecord) (*models.AnswerRecord, error) {
	sess, err := s.cache.GetSession(a.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	if sess.Status != models.SessionInProgress {
		return nil, NewConflictError("session already terminal")
	}
	if a.OptionIndex < 0 || a.OptionIndex >= len(scoring.OptionWeights) {
		return nil, NewInvalidError("option index out of range")
	}
	slot, err := s.scorer.Slot(a.QuestionIndex)
	if err != nil {
		return nil, NewInvalidError(err.Error())
	}
	a.RespondentID = sess.RespondentID
	a.Axis = string(slot.Axis)
	a.Direction = slot.Direction
	a.Score = scoring.OptionWeights[a.OptionIndex] * float64(slot.Direction)

	rec, err := s.cache.SaveAnswer(a)
	if err != nil {
		return nil, mapCacheErr(err)
	}

	answers, err := s.cache.AnswersBySession(a.SessionID)
	if err == nil {
		count := len(answers)
		idx := rec.QuestionIndex + 1
		cur := sess.CurrentIndex
		if idx > cur {
			cur = idx
		}
		if _, err := s.cache.UpdateSession(a.SessionID, cache.SessionUpdate{
			AnsweredCount: &count,
			CurrentIndex:  &cur,
		}); err != nil {
			s.logger.Warn("update session progress", zap.Error(err))
		}
	}

	s.markPending(ctx, rec.SessionID, rec.QuestionIndex)
	return rec, nil
}

// pendingSlot is one dirty answer awaiting the next batched push.
type pendingSlot struct {
	sessionID     string
	questionIndex int
}

// markPending registers a dirty answer slot and (re)arms the debounce
// timer. Re-answering a slot already in the batch does not grow it. The
// batch keeps submission order; hitting the threshold flushes immediately.
func (s *DataService) markPending(ctx context.Context, sessionID string, questionIndex int) {
	s.mu.Lock()
	seen := false
	for _, p := range s.pending {
		if p.sessionID == sessionID && p.questionIndex == questionIndex {
			seen = true
			break
		}
	}
	if !seen {
		s.pending = append(s.pending, pendingSlot{sessionID, questionIndex})
	}
	if s.cancelTimer != nil {
		s.cancelTimer()
		s.cancelTimer = nil
	}
	force := len(s.pending) >= s.batchEvery
	if !force {
		s.cancelTimer = s.scheduleOnce(s.debounceWindow, func() {
			s.FlushAnswers(context.Background())
		})
	}
	s.mu.Unlock()

	if force {
		s.FlushAnswers(ctx)
	}
}

// takePending swaps out the dirty-slot batch.
func (s *DataService) takePending() []pendingSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelTimer != nil {
		s.cancelTimer()
		s.cancelTimer = nil
	}
	out := s.pending
	s.pending = nil
	return out
}

// unmarkPending drops a slot from the batch, for answers removed before
// they were ever pushed.
func (s *DataService) unmarkPending(sessionID string, questionIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pending {
		if p.sessionID == sessionID && p.questionIndex == questionIndex {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// dirtyRecords resolves dirty slots to their current local records,
// preserving submission order. Slots whose record is gone are skipped.
func (s *DataService) dirtyRecords(slots []pendingSlot) []models.AnswerRecord {
	bySession := map[string][]models.AnswerRecord{}
	var out []models.AnswerRecord
	for _, slot := range slots {
		answers, ok := bySession[slot.sessionID]
		if !ok {
			var err error
			answers, err = s.cache.AnswersBySession(slot.sessionID)
			if err != nil {
				s.logger.Error("load answers for push", zap.String("session", slot.sessionID), zap.Error(err))
			}
			bySession[slot.sessionID] = answers
		}
		for i := range answers {
			if answers[i].QuestionIndex == slot.questionIndex {
				out = append(out, answers[i])
				break
			}
		}
	}
	return out
}

// FlushAnswers pushes every dirty answer slot to the system of record in
// submission order, queueing those that cannot be delivered now. The
// server upserts on (session, question index), so replays are safe.
func (s *DataService) FlushAnswers(ctx context.Context) {
	for _, rec := range s.dirtyRecords(s.takePending()) {
		s.pushOrQueue(ctx, models.EntityAnswer, models.OpCreate, rec, func(ctx context.Context) error {
			_, err := s.remote.SaveAnswer(ctx, &rec)
			return err
		})
	}
}

// ClearAnswer withdraws a recorded answer, for back-navigation that resets
// a slot. The removal propagates remotely like any other mutation.
func (s *DataService) ClearAnswer(ctx context.Context, sessionID string, questionIndex int) error {
	sess, err := s.cache.GetSession(sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return NewNotFoundError("session not found")
	}
	if sess.Status != models.SessionInProgress {
		return NewConflictError("session already terminal")
	}
	answers, err := s.cache.AnswersBySession(sessionID)
	if err != nil {
		return err
	}
	var rec *models.AnswerRecord
	for i := range answers {
		if answers[i].QuestionIndex == questionIndex {
			rec = &answers[i]
			break
		}
	}
	if rec == nil {
		return NewNotFoundError("answer not found")
	}
	if _, err := s.cache.DeleteAnswer(rec.ID); err != nil {
		return mapCacheErr(err)
	}
	s.unmarkPending(sessionID, questionIndex)
	count := len(answers) - 1
	if _, err := s.cache.UpdateSession(sessionID, cache.SessionUpdate{AnsweredCount: &count}); err != nil {
		s.logger.Warn("update session progress", zap.Error(err))
	}
	s.pushOrQueue(ctx, models.EntityAnswer, models.OpDelete, *rec, func(ctx context.Context) error {
		return s.remote.DeleteAnswer(ctx, rec.ID)
	})
	return nil
}

func (s *DataService) SessionAnswers(sessionID string) ([]models.AnswerRecord, error) {
	return s.cache.AnswersBySession(sessionID)
}

// AnswerStats summarizes a session's answering behavior.
type AnswerStats struct {
	Answered     int `json:"answered"`
	Changed      int `json:"changed"`
	TotalChanges int `json:"total_changes"`
}

func (s *DataService) SessionAnswerStats(sessionID string) (*AnswerStats, error) {
	answers, err := s.cache.AnswersBySession(sessionID)
	if err != nil {
		return nil, err
	}
	st := &AnswerStats{Answered: len(answers)}
	for _, a := range answers {
		if a.Changed {
			st.Changed++
		}
		st.TotalChanges += a.ChangeCount
	}
	return st, nil
}

// --- session completion ---

// CompleteSession flushes outstanding answers, scores the session and moves
// it to its terminal completed state. overrideType, when non-empty,
// replaces the computed four-letter type but never the axis scores.
func (s *DataService) CompleteSession(ctx context.Context, id, overrideType string) (*models.TestSession, error) {
	sess, err := s.cache.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	if sess.Status != models.SessionInProgress {
		return nil, NewConflictError("session already terminal")
	}

	s.FlushAnswers(ctx)

	answers, err := s.cache.AnswersBySession(id)
	if err != nil {
		return nil, err
	}
	seq := make([]int, s.scorer.Questions())
	for i := range seq {
		seq[i] = scoring.Unanswered
	}
	for _, a := range answers {
		if a.QuestionIndex >= 0 && a.QuestionIndex < len(seq) {
			seq[a.QuestionIndex] = a.OptionIndex
		}
	}
	res, err := s.scorer.Score(seq)
	if err != nil {
		return nil, NewInvalidError(err.Error())
	}

	typ := res.TypeWith(overrideType)
	shadow := scoring.ShadowType(typ)
	axisScores := make(map[string]float64, len(res.AxisScores))
	for axis, v := range res.AxisScores {
		axisScores[string(axis)] = v
	}
	axisPercent := make(map[string]int, len(res.Percentages))
	for axis, v := range res.Percentages {
		axisPercent[string(axis)] = v
	}

	status := models.SessionCompleted
	completedAt := s.now()
	rec, err := s.cache.UpdateSession(id, cache.SessionUpdate{
		Status:        &status,
		AnsweredCount: &res.Answered,
		ResultType:    &typ,
		ShadowType:    &shadow,
		AxisScores:    axisScores,
		AxisPercent:   axisPercent,
		Confidence:    &res.Confidence,
		CompletedAt:   &completedAt,
	})
	if err != nil {
		return nil, mapCacheErr(err)
	}
	s.logger.Info("session completed",
		zap.String("session", id),
		zap.String("type", typ),
		zap.Int("answered", res.Answered),
		zap.Float64("confidence", res.Confidence))
	s.pushOrQueue(ctx, models.EntitySession, models.OpUpdate, rec, func(ctx context.Context) error {
		_, err := s.remote.UpdateSession(ctx, rec)
		return err
	})
	return rec, nil
}

// AbandonSession moves an in-progress session to its terminal abandoned
// state. No scoring runs; existing answers stay as they are.
func (s *DataService) AbandonSession(ctx context.Context, id string) (*models.TestSession, error) {
	sess, err := s.cache.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	if sess.Status != models.SessionInProgress {
		return nil, NewConflictError("session already terminal")
	}
	s.FlushAnswers(ctx)
	status := models.SessionAbandoned
	rec, err := s.cache.UpdateSession(id, cache.SessionUpdate{Status: &status})
	if err != nil {
		return nil, mapCacheErr(err)
	}
	s.pushOrQueue(ctx, models.EntitySession, models.OpUpdate, rec, func(ctx context.Context) error {
		_, err := s.remote.UpdateSession(ctx, rec)
		return err
	})
	return rec, nil
}

// --- orders ---

func (s *DataService) CreateOrder(ctx context.Context, o *models.PaymentOrder) (*models.PaymentOrder, error) {
	if o.RespondentID == "" || o.SessionID == "" {
		return nil, NewInvalidError("respondent and session ids required")
	}
	if o.OriginalAmount < 0 || o.FinalAmount < 0 {
		return nil, NewInvalidError("amounts must be non-negative")
	}
	if o.FinalAmount == 0 && o.OriginalAmount > 0 {
		o.FinalAmount = o.OriginalAmount - o.DiscountAmount
	}
	if o.FinalAmount > o.OriginalAmount {
		return nil, NewInvalidError("final amount exceeds original")
	}
	rec, err := s.cache.CreateOrder(o)
	if err != nil {
		return nil, mapCacheErr(err)
	}
	s.pushOrQueue(ctx, models.EntityOrder, models.OpCreate, rec, func(ctx context.Context) error {
		srv, err := s.remote.CreateOrder(ctx, rec)
		if err != nil {
			return err
		}
		if srv != nil {
			rec = srv
		}
		return nil
	})
	return rec, nil
}

func (s *DataService) GetOrder(ctx context.Context, id string) (*models.PaymentOrder, error) {
	if s.monitor.IsOnline() {
		if srv, err := s.remote.GetOrder(ctx, id); err == nil {
			return srv, nil
		} else {
			s.logger.Debug("remote read failed, serving local mirror", zap.Error(err))
		}
	}
	rec, err := s.cache.GetOrder(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, NewNotFoundError("order not found")
	}
	return rec, nil
}

// ApplyGatewayOutcome records a confirmed payment-gateway result. Paid and
// failed only ever follow pending; refunded only ever follows paid.
func (s *DataService) ApplyGatewayOutcome(ctx context.Context, id, status, gatewayOrderID, gatewayTradeNo string) (*models.PaymentOrder, error) {
	order, err := s.cache.GetOrder(id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, NewNotFoundError("order not found")
	}
	valid := false
	switch status {
	case models.OrderPaid, models.OrderFailed:
		valid = order.Status == models.OrderPending
	case models.OrderRefunded:
		valid = order.Status == models.OrderPaid
	}
	if !valid {
		return nil, NewConflictError("invalid order transition " + order.Status + " -> " + status)
	}
	upd := cache.OrderUpdate{Status: &status}
	if gatewayOrderID != "" {
		upd.GatewayOrderID = &gatewayOrderID
	}
	if gatewayTradeNo != "" {
		upd.GatewayTradeNo = &gatewayTradeNo
	}
	rec, err := s.cache.UpdateOrder(id, upd)
	if err != nil {
		return nil, mapCacheErr(err)
	}
	s.pushOrQueue(ctx, models.EntityOrder, models.OpUpdate, rec, func(ctx context.Context) error {
		_, err := s.remote.UpdateOrder(ctx, rec)
		return err
	})
	return rec, nil
}

// --- behavior logs ---

func (s *DataService) LogBehavior(ctx context.Context, l *models.BehaviorLog) (*models.BehaviorLog, error) {
	if l.EventType == "" {
		return nil, NewInvalidError("event type required")
	}
	rec, err := s.cache.AppendLog(l)
	if err != nil {
		return nil, mapCacheErr(err)
	}
	s.pushOrQueue(ctx, models.EntityBehavior, models.OpCreate, rec, func(ctx context.Context) error {
		_, err := s.remote.CreateLog(ctx, rec)
		return err
	})
	return rec, nil
}

func (s *DataService) RespondentLogs(ctx context.Context, respondentID string, limit int) ([]models.BehaviorLog, error) {
	if s.monitor.IsOnline() {
		if list, err := s.remote.LogsByRespondent(ctx, respondentID, limit); err == nil {
			return list, nil
		}
	}
	return s.cache.LogsByRespondent(respondentID, limit)
}

// --- shares ---

func (s *DataService) CreateShare(ctx context.Context, sh *models.ShareRecord) (*models.ShareRecord, error) {
	if sh.Platform == "" {
		return nil, NewInvalidError("platform required")
	}
	rec, err := s.cache.CreateShare(sh)
	if err != nil {
		return nil, mapCacheErr(err)
	}
	s.pushOrQueue(ctx, models.EntityShare, models.OpCreate, rec, func(ctx context.Context) error {
		srv, err := s.remote.CreateShare(ctx, rec)
		if err != nil {
			return err
		}
		if srv != nil {
			rec = srv
		}
		return nil
	})
	return rec, nil
}

// RegisterShareEvent bumps one share counter.
func (s *DataService) RegisterShareEvent(ctx context.Context, id, kind string) (*models.ShareRecord, error) {
	rec, err := s.cache.IncrementShare(id, kind)
	if err != nil {
		return nil, NewInvalidError(err.Error())
	}
	if rec == nil {
		return nil, NewNotFoundError("share not found")
	}
	s.pushOrQueue(ctx, models.EntityShare, models.OpUpdate, rec, func(ctx context.Context) error {
		_, err := s.remote.UpdateShare(ctx, rec)
		return err
	})
	return rec, nil
}

// --- backup / maintenance ---

func (s *DataService) ExportAll() (*cache.Snapshot, error) { return s.cache.ExportAll() }

func (s *DataService) ImportAll(snap *cache.Snapshot) error {
	if snap == nil {
		return NewInvalidError("nil snapshot")
	}
	return mapCacheErr(s.cache.ImportAll(snap))
}

func (s *DataService) StoreStats() (*cache.Stats, error) { return s.cache.Stats() }

// handleTerminate runs on the shutdown signal: the debounce timer can no
// longer be waited out, so dirty answers go out as a best-effort beacon and
// into the durable queue for the next start.
func (s *DataService) handleTerminate() {
	batch := s.dirtyRecords(s.takePending())
	if len(batch) == 0 {
		return
	}
	s.remote.Beacon("/answers/batch", batch)
	ctx := context.Background()
	for i := range batch {
		s.enqueue(ctx, models.EntityAnswer, models.OpCreate, batch[i])
	}
	s.logger.Info("terminate: dirty answers queued", zap.Int("count", len(batch)))
}
