package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tkjaer/synping/internal/output"
	"github.com/tkjaer/synping/internal/packet"
	"github.com/tkjaer/synping/internal/report"
	"github.com/tkjaer/synping/internal/shared"
	"github.com/tkjaer/synping/internal/stats"
	"github.com/tkjaer/synping/pkg/rawsock"
)

const (
	// DefaultInterval is used when Start is given a zero interval
	DefaultInterval = 10 * time.Millisecond
	// DefaultReplyWait is how long a finished send loop waits for late replies
	DefaultReplyWait = time.Second
	// DefaultPollInterval bounds each socket read, and so the stop latency
	DefaultPollInterval = time.Second
	// DefaultStopTimeout bounds how long Stop waits for the send, transmit
	// and receive loops to exit
	DefaultStopTimeout = 2 * time.Second
	// DefaultFlushTimeout bounds delivery of the final summaries to the
	// outputs, including the final email report
	DefaultFlushTimeout = report.FinalTimeout + time.Second
)

var (
	ErrAlreadyRunning = errors.New("probe manager already started")
	ErrAlreadyStopped = errors.New("probe manager already stopped")
	ErrNotRunning     = errors.New("probe manager not started")
	ErrStopTimeout    = errors.New("timed out waiting for probe routines to stop")
	ErrFlushTimeout   = errors.New("timed out delivering final summaries")
	ErrNoDestinations = errors.New("no destinations to probe")
)

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopped
)

type outputMsg struct {
	event string // shared.EventSent or shared.EventAnswered
	obs   shared.Observation
}

// ProbeManager runs one send loop per destination over a shared raw
// connection, correlates the replies and feeds the outputs
type ProbeManager struct {
	// Coordination
	wg       sync.WaitGroup // transmit and receive routines
	probesWg sync.WaitGroup
	outputWg sync.WaitGroup
	cancel   context.CancelFunc
	done     chan struct{}

	// Shared resources
	conn         rawsock.Conn
	transmitChan chan TransmitEvent
	outputChan   chan outputMsg
	outputs      *output.OutputManager
	store        *stats.Store
	probes       map[shared.DestinationKey]*Probe
	order        []*Probe

	// Configuration
	replyWait    time.Duration
	pollInterval time.Duration
	stopTimeout  time.Duration
	flushTimeout time.Duration
	onComplete   func()
	now          func() time.Time
	sourcePort   func() uint16

	mu    sync.Mutex
	state state
	errs  []error
}

type Option func(*ProbeManager)

// WithOutput registers an output. Outputs are closed by Stop.
func WithOutput(o output.Output) Option {
	return func(pm *ProbeManager) {
		pm.outputs.Register(o)
	}
}

// WithOnComplete sets a callback run once all send loops have finished
func WithOnComplete(fn func()) Option {
	return func(pm *ProbeManager) {
		pm.onComplete = fn
	}
}

func WithReplyWait(d time.Duration) Option {
	return func(pm *ProbeManager) {
		pm.replyWait = d
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(pm *ProbeManager) {
		pm.pollInterval = d
	}
}

func WithStopTimeout(d time.Duration) Option {
	return func(pm *ProbeManager) {
		pm.stopTimeout = d
	}
}

func WithFlushTimeout(d time.Duration) Option {
	return func(pm *ProbeManager) {
		pm.flushTimeout = d
	}
}

// NewProbeManager prepares statistics and a send loop for every destination.
// Duplicate destinations are probed once.
func NewProbeManager(conn rawsock.Conn, destinations []shared.Destination, opts ...Option) (*ProbeManager, error) {
	if conn == nil {
		return nil, errors.New("nil connection")
	}
	if len(destinations) == 0 {
		return nil, ErrNoDestinations
	}

	pm := &ProbeManager{
		done:         make(chan struct{}),
		conn:         conn,
		transmitChan: make(chan TransmitEvent, 100),
		outputChan:   make(chan outputMsg, 100),
		outputs:      &output.OutputManager{},
		store:        stats.NewStore(),
		probes:       make(map[shared.DestinationKey]*Probe),

		replyWait:    DefaultReplyWait,
		pollInterval: DefaultPollInterval,
		stopTimeout:  DefaultStopTimeout,
		flushTimeout: DefaultFlushTimeout,
		now:          time.Now,
		sourcePort:   randomSourcePort,
	}
	for _, opt := range opts {
		opt(pm)
	}

	for _, d := range destinations {
		if !d.Key.Addr.Is4() || !d.Source.Is4() {
			return nil, fmt.Errorf("%v from %v: %w", d.Key, d.Source, packet.ErrInvalidAddress)
		}
		if _, exists := pm.probes[d.Key]; exists {
			slog.Debug("Skipping duplicate destination", "destination", d.Key)
			continue
		}
		p := &Probe{
			dest:         d,
			builder:      packet.NewBuilder(d.Source),
			stats:        pm.store.Add(d.Key, d.Host),
			transmitChan: pm.transmitChan,
			sourcePort:   pm.sourcePort,
		}
		pm.probes[d.Key] = p
		pm.order = append(pm.order, p)
	}

	return pm, nil
}

func (pm *ProbeManager) recordErr(err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.errs = append(pm.errs, err)
}

// Err returns the fatal errors of the send and receive loops so far
func (pm *ProbeManager) Err() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return errors.Join(pm.errs...)
}

// Done is closed once every send loop has finished
func (pm *ProbeManager) Done() <-chan struct{} {
	return pm.done
}

// Start launches the routines and returns immediately. A zero interval
// means DefaultInterval and a zero count probes until stopped.
func (pm *ProbeManager) Start(ctx context.Context, interval time.Duration, count uint) error {
	pm.mu.Lock()
	if pm.state != stateNew {
		pm.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, pm.cancel = context.WithCancel(ctx)
	pm.state = stateRunning
	pm.mu.Unlock()

	if interval <= 0 {
		interval = DefaultInterval
	}

	slog.Debug("Starting probe manager", "destinations", len(pm.order), "interval", interval, "count", count, "outputs", pm.outputs.Len())

	// Start output routine (separate wait group, it drains until outputChan is closed)
	pm.outputWg.Add(1)
	go func() {
		defer pm.outputWg.Done()
		pm.outputRoutine()
	}()

	// Start transmit routine
	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		pm.transmitRoutine(ctx)
	}()

	// Start receiving routine
	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		if err := pm.recvProbes(ctx); err != nil {
			slog.Error("Receive routine error", "error", err)
			pm.recordErr(err)
		}
	}()

	// Start all probes
	for _, p := range pm.order {
		pm.probesWg.Add(1)
		go func(p *Probe) {
			defer pm.probesWg.Done()
			if err := p.Run(ctx, interval, count, pm.replyWait); err != nil {
				slog.Error("Probe error", "destination", p.dest.Key, "error", err)
				pm.recordErr(err)
			}
		}(p)
	}

	go func() {
		pm.probesWg.Wait()
		slog.Debug("All probes finished")
		close(pm.done)
		if pm.onComplete != nil {
			pm.onComplete()
		}
	}()

	return nil
}

// Stop cancels all routines and waits for the loops to exit, then hands the
// final summaries to the outputs and closes them before returning. It
// returns the fatal loop errors, plus ErrStopTimeout if the loops did not exit
// in time (the summaries are then not delivered) or ErrFlushTimeout if the
// outputs did not finish in time.
func (pm *ProbeManager) Stop() error {
	pm.mu.Lock()
	switch pm.state {
	case stateNew:
		pm.mu.Unlock()
		return ErrNotRunning
	case stateStopped:
		pm.mu.Unlock()
		return ErrAlreadyStopped
	}
	pm.state = stateStopped
	pm.mu.Unlock()

	slog.Debug("Stopping ProbeManager")
	pm.cancel()

	loopsDone := make(chan struct{})
	go func() {
		pm.probesWg.Wait()
		pm.wg.Wait()
		close(loopsDone)
	}()

	select {
	case <-loopsDone:
		slog.Debug("All probe routines finished")
	case <-time.After(pm.stopTimeout):
		slog.Warn("Probe routines did not stop in time", "timeout", pm.stopTimeout)
		pm.recordErr(ErrStopTimeout)
		return pm.Err()
	}

	// Nothing writes to outputChan any more, close it so outputRoutine
	// flushes the summaries and exits
	close(pm.outputChan)
	flushed := make(chan struct{})
	go func() {
		pm.outputWg.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
		slog.Debug("Final summaries delivered")
	case <-time.After(pm.flushTimeout):
		slog.Warn("Outputs did not finish in time", "timeout", pm.flushTimeout)
		pm.recordErr(ErrFlushTimeout)
	}
	return pm.Err()
}

// outputRoutine forwards observations to the outputs and, once outputChan
// is closed, emits the final summaries
func (pm *ProbeManager) outputRoutine() {
	for msg := range pm.outputChan {
		switch msg.event {
		case shared.EventSent:
			pm.outputs.ProbeSent(msg.obs)
		case shared.EventAnswered:
			pm.outputs.ProbeAnswered(msg.obs)
		}
	}
	pm.outputs.Summary(pm.Summaries())
	if err := pm.outputs.Close(); err != nil {
		slog.Warn("Failed to close outputs", "error", err)
	}
}

// Summaries returns the statistics of every destination in probe order
func (pm *ProbeManager) Summaries() []shared.Summary {
	return pm.store.Summaries()
}

// Report renders Summaries as text
func (pm *ProbeManager) Report() string {
	return report.Format(pm.Summaries())
}
