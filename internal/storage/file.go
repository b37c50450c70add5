package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
)

// FileStorage keeps everything in memory behind a single RWMutex and
// persists to JSON files through debounced background workers. Writes to
// disk go through a temp file + rename so a crash never leaves a truncated
// file behind.
type FileStorage struct {
	states      map[string]*internal.UserState               // userID -> state
	records     map[string]*internal.CheckInRecord           // userID|day -> record
	userRecords map[string][]*internal.CheckInRecord         // userID -> records, newest first
	events      []*internal.PatternEvent

	mu sync.RWMutex

	statesFile  string
	recordsFile string
	eventsFile  string

	saveStatesChan  chan struct{}
	saveRecordsChan chan struct{}
	saveEventsChan  chan struct{}
	shutdownChan    chan struct{}
	saveDelay       time.Duration

	logger internal.Logger
}

func recordKey(userID string, day internal.DayKey) string {
	return userID + "|" + string(day)
}

func NewFileStorage(statesFile, recordsFile, eventsFile string, logger internal.Logger) (*FileStorage, error) {
	s := &FileStorage{
		states:          make(map[string]*internal.UserState),
		records:         make(map[string]*internal.CheckInRecord),
		userRecords:     make(map[string][]*internal.CheckInRecord),
		statesFile:      statesFile,
		recordsFile:     recordsFile,
		eventsFile:      eventsFile,
		saveStatesChan:  make(chan struct{}, 1),
		saveRecordsChan: make(chan struct{}, 1),
		saveEventsChan:  make(chan struct{}, 1),
		shutdownChan:    make(chan struct{}),
		saveDelay:       500 * time.Millisecond,
		logger:          logger,
	}

	if err := s.loadStates(); err != nil {
		return nil, fmt.Errorf("storage: failed to load user states: %w", err)
	}
	if err := s.loadRecords(); err != nil {
		return nil, fmt.Errorf("storage: failed to load check-in records: %w", err)
	}
	if err := s.loadEvents(); err != nil {
		return nil, fmt.Errorf("storage: failed to load pattern events: %w", err)
	}

	go s.saveWorker(s.saveStatesChan, s.saveStates, "user states")
	go s.saveWorker(s.saveRecordsChan, s.saveRecords, "check-in records")
	go s.saveWorker(s.saveEventsChan, s.saveEvents, "pattern events")

	return s, nil
}

func loadJSONFile(path string, v interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func (s *FileStorage) loadStates() error {
	var states []*internal.UserState
	if err := loadJSONFile(s.statesFile, &states); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		s.states[st.UserID] = st
	}
	return nil
}

func (s *FileStorage) loadRecords() error {
	var records []*internal.CheckInRecord
	if err := loadJSONFile(s.recordsFile, &records); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[recordKey(r.UserID, r.DayKey)] = r
		s.userRecords[r.UserID] = append(s.userRecords[r.UserID], r)
	}
	for userID := range s.userRecords {
		sort.Slice(s.userRecords[userID], func(i, j int) bool {
			return s.userRecords[userID][i].DayKey > s.userRecords[userID][j].DayKey
		})
	}
	return nil
}

func (s *FileStorage) loadEvents() error {
	var events []*internal.PatternEvent
	if err := loadJSONFile(s.eventsFile, &events); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	return nil
}

func atomicWriteFileJSON(filePath string, data interface{}) error {
	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, filePath)
}

func (s *FileStorage) saveStates() error {
	s.mu.RLock()
	states := make([]*internal.UserState, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, st)
	}
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.statesFile, states)
}

func (s *FileStorage) saveRecords() error {
	s.mu.RLock()
	records := make([]*internal.CheckInRecord, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.recordsFile, records)
}

func (s *FileStorage) saveEvents() error {
	s.mu.RLock()
	events := make([]*internal.PatternEvent, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.eventsFile, events)
}

// saveWorker batches save operations to avoid a disk write per mutation.
func (s *FileStorage) saveWorker(signal chan struct{}, save func() error, what string) {
	timer := time.NewTimer(s.saveDelay)
	defer timer.Stop()

	for {
		select {
		case <-signal:
			timer.Reset(s.saveDelay)
		case <-timer.C:
			if err := save(); err != nil {
				s.logger.Errorf("storage: error saving %s: %v", what, err)
			}
		case <-s.shutdownChan:
			return
		}
	}
}

func signalSave(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// --- UserStateRepository ---

func (s *FileStorage) GetUserState(ctx context.Context, userID string) (*internal.UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (s *FileStorage) PutUserState(ctx context.Context, state *internal.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.casStateLocked(state); err != nil {
		return err
	}
	signalSave(s.saveStatesChan)
	return nil
}

// casStateLocked applies the version check and stores a copy with the
// version bumped. Caller holds the write lock.
func (s *FileStorage) casStateLocked(state *internal.UserState) error {
	existing, ok := s.states[state.UserID]
	if ok && existing.Version != state.Version {
		return internal.ErrConcurrentModification
	}
	if !ok && state.Version != 0 {
		return internal.ErrConcurrentModification
	}
	cp := state.Clone()
	cp.Version++
	s.states[state.UserID] = cp
	state.Version = cp.Version
	return nil
}

func (s *FileStorage) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// --- CheckInRepository ---

func (s *FileStorage) GetRecord(ctx context.Context, userID string, day internal.DayKey) (*internal.CheckInRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordKey(userID, day)]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (s *FileStorage) RecentRecords(ctx context.Context, userID string, n int) ([]internal.CheckInRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ptrs := s.userRecords[userID]
	if n > len(ptrs) {
		n = len(ptrs)
	}
	out := make([]internal.CheckInRecord, n)
	for i := 0; i < n; i++ {
		out[i] = *ptrs[i].Clone()
	}
	return out, nil
}

func (s *FileStorage) CommitCheckIn(ctx context.Context, record *internal.CheckInRecord, state *internal.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(record.UserID, record.DayKey)
	if _, exists := s.records[key]; exists {
		return internal.ErrDuplicateCheckIn
	}
	// CAS first: if the state is stale, neither document is written.
	if err := s.casStateLocked(state); err != nil {
		return err
	}

	cp := record.Clone()
	s.records[key] = cp
	s.insertUserRecordLocked(cp)

	signalSave(s.saveRecordsChan)
	signalSave(s.saveStatesChan)
	return nil
}

// insertUserRecordLocked maintains the per-user index in descending day order.
func (s *FileStorage) insertUserRecordLocked(record *internal.CheckInRecord) {
	records := s.userRecords[record.UserID]
	inserted := false
	for i, existing := range records {
		if existing.DayKey < record.DayKey {
			records = append(records[:i], append([]*internal.CheckInRecord{record}, records[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		records = append(records, record)
	}
	s.userRecords[record.UserID] = records
}

func (s *FileStorage) UpdateRecord(ctx context.Context, record *internal.CheckInRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(record.UserID, record.DayKey)
	existing, ok := s.records[key]
	if !ok {
		return internal.NewDomainError(internal.KindNotFound, "record_not_found",
			"no check-in record for this day")
	}
	*existing = *record.Clone()
	signalSave(s.saveRecordsChan)
	return nil
}

// --- PatternEventRepository ---

func (s *FileStorage) OpenEvent(ctx context.Context, userID string, typ internal.PatternType) (*internal.PatternEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.UserID == userID && ev.Type == typ && ev.ResolvedAt == nil {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *FileStorage) AppendEvent(ctx context.Context, event *internal.PatternEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.events = append(s.events, &cp)
	signalSave(s.saveEventsChan)
	return nil
}

func (s *FileStorage) ResolveEvent(ctx context.Context, eventID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == eventID && ev.ResolvedAt == nil {
			t := at
			ev.ResolvedAt = &t
			signalSave(s.saveEventsChan)
			return nil
		}
	}
	return internal.NewDomainError(internal.KindNotFound, "event_not_found",
		"no open pattern event with this id")
}

func (s *FileStorage) ListOpenEvents(ctx context.Context, userID string) ([]internal.PatternEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []internal.PatternEvent
	for _, ev := range s.events {
		if ev.UserID == userID && ev.ResolvedAt == nil {
			out = append(out, *ev)
		}
	}
	return out, nil
}

// Close stops the background workers and flushes pending data synchronously.
func (s *FileStorage) Close() error {
	close(s.shutdownChan)

	if err := s.saveStates(); err != nil {
		return err
	}
	if err := s.saveRecords(); err != nil {
		return err
	}
	return s.saveEvents()
}

var _ Store = (*FileStorage)(nil)
