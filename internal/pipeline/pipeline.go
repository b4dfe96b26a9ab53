// Package pipeline implements C11: the orchestrator that wires every other
// component into one running process. Four workers subscribe to the durable
// streams, feed option prints through clustering (C7) and equity prints
// through the dark-flow join (C5), and every record a worker derives is
// persisted before it is published, per the bus's at-least-once contract.
package pipeline

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/flowdesk/optionflow/internal/alertscore"
	"github.com/flowdesk/optionflow/internal/bus"
	"github.com/flowdesk/optionflow/internal/classifier"
	"github.com/flowdesk/optionflow/internal/cluster"
	"github.com/flowdesk/optionflow/internal/config"
	"github.com/flowdesk/optionflow/internal/contractid"
	"github.com/flowdesk/optionflow/internal/darkflow"
	"github.com/flowdesk/optionflow/internal/enrich"
	"github.com/flowdesk/optionflow/internal/metrics"
	"github.com/flowdesk/optionflow/internal/model"
	"github.com/flowdesk/optionflow/internal/notify"
	"github.com/flowdesk/optionflow/internal/placement"
	"github.com/flowdesk/optionflow/internal/quotecache"
	"github.com/flowdesk/optionflow/internal/rollingstats"
	"github.com/flowdesk/optionflow/internal/store"
	"github.com/flowdesk/optionflow/internal/structure"
)

// retryAttempts, retryMin, retryMax and retryFactor are the bounded-retry
// knobs for persist/publish, grounded on predator_engine.go's fixed-delay
// reconnect loop but implemented with the real backoff library.
const (
	retryAttempts = 3
	retryMin      = 50 * time.Millisecond
	retryMax      = 2 * time.Second
	retryFactor   = 2
)

// structureRegistryDepth bounds how many closed legs the structure registry
// remembers per root.
const structureRegistryDepth = 20

// Bus is the subset of the bus contract the orchestrator needs.
type Bus interface {
	bus.Publisher
	bus.Subscriber
}

// Store is the subset of the store contract the orchestrator needs.
type Store interface {
	store.Inserter
}

// Pipeline owns every worker and every piece of shared, process-wide state:
// the quote caches, the rolling-baseline store, the cluster engine, the
// structure-leg registry, and the dark-flow engine. The cluster engine and
// the structure registry are touched only from the option-print worker
// goroutine; nothing else may reach into them.
type Pipeline struct {
	cfg      *config.Config
	bus      Bus
	store    Store
	metrics  *metrics.Metrics
	notifier notify.Notifier

	optionQuotes *quotecache.OptionCache
	equityQuotes *quotecache.EquityCache
	baselines    *rollingstats.Store

	clusters *cluster.Engine
	legs     *structure.Registry
	dark     *darkflow.Engine

	wg sync.WaitGroup
}

// New wires every collaborator together. notifier may be nil (no configured
// Telegram bot); metrics may be nil (metrics disabled) — both are checked at
// every call site.
func New(cfg *config.Config, b Bus, s Store, m *metrics.Metrics, notifier notify.Notifier) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		bus:          b,
		store:        s,
		metrics:      m,
		notifier:     notifier,
		optionQuotes: quotecache.NewOptionCache(cfg.OptionNBBOMaxAgeMs),
		equityQuotes: quotecache.NewEquityCache(cfg.EquityQuoteMaxAgeMs),
		baselines:    rollingstats.New(cfg.RollingWindowSize, cfg.RollingWindowTTL),
		clusters:     cluster.New(cfg.ClusterWindowMs),
		legs:         structure.NewRegistry(structureRegistryDepth),
		dark:         darkflow.NewEngine(),
	}
}

// Run subscribes to the four durable streams and blocks until ctx is
// canceled. On cancellation it waits for every worker to stop pulling, then
// flushes every live cluster before returning, matching the drain-then-exit
// shutdown sequence.
func (p *Pipeline) Run(ctx context.Context) error {
	nbboCh, err := p.bus.Subscribe(ctx, bus.SubjectOptionNBBO, p.cfg.DeliverPolicy)
	if err != nil {
		return err
	}
	equityQuoteCh, err := p.bus.Subscribe(ctx, bus.SubjectEquityQuotes, p.cfg.DeliverPolicy)
	if err != nil {
		return err
	}
	equityPrintCh, err := p.bus.Subscribe(ctx, bus.SubjectEquityPrints, p.cfg.DeliverPolicy)
	if err != nil {
		return err
	}
	optionPrintCh, err := p.bus.Subscribe(ctx, bus.SubjectOptionPrints, p.cfg.DeliverPolicy)
	if err != nil {
		return err
	}

	p.wg.Add(4)
	go p.runWorker(ctx, nbboCh, p.handleOptionNBBOMsg)
	go p.runWorker(ctx, equityQuoteCh, p.handleEquityQuoteMsg)
	go p.runWorker(ctx, equityPrintCh, p.handleEquityPrintMsg)
	go p.runWorker(ctx, optionPrintCh, p.handleOptionPrintMsg)

	log.Println("✅ pipeline running, subscribed to 4 streams")

	<-ctx.Done()
	p.wg.Wait()

	log.Println("⚠️ workers drained, flushing live clusters")
	p.drain(context.Background())

	return nil
}

func (p *Pipeline) runWorker(ctx context.Context, ch <-chan bus.Message, handle func(context.Context, bus.Message)) {
	defer p.wg.Done()
	for msg := range ch {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("❌ %s: recovered from panic while handling message: %v", msg.Subject, r)
				}
			}()
			handle(ctx, msg)
		}()
	}
}

func (p *Pipeline) handleOptionNBBOMsg(ctx context.Context, msg bus.Message) {
	var q model.OptionNBBO
	if err := json.Unmarshal(msg.Payload, &q); err != nil {
		log.Printf("⚠️ option.nbbo: bad payload: %v", err)
		return
	}
	p.optionQuotes.Update(q)
}

func (p *Pipeline) handleEquityQuoteMsg(ctx context.Context, msg bus.Message) {
	var q model.EquityQuote
	if err := json.Unmarshal(msg.Payload, &q); err != nil {
		log.Printf("⚠️ equity.quotes: bad payload: %v", err)
		return
	}
	p.equityQuotes.Update(q)
}

func (p *Pipeline) handleEquityPrintMsg(ctx context.Context, msg bus.Message) {
	var print model.EquityPrint
	if err := json.Unmarshal(msg.Payload, &print); err != nil {
		log.Printf("⚠️ equity.prints: bad payload: %v", err)
		return
	}
	p.handleEquityPrint(ctx, print)
}

func (p *Pipeline) handleOptionPrintMsg(ctx context.Context, msg bus.Message) {
	var print model.OptionPrint
	if err := json.Unmarshal(msg.Payload, &print); err != nil {
		log.Printf("⚠️ option.prints: bad payload: %v", err)
		return
	}
	p.handleOptionPrint(ctx, print)
}

// handleEquityPrint runs C5: join the print against the equity-quote cache,
// persist and publish the join, then run dark-pool inference over it.
func (p *Pipeline) handleEquityPrint(ctx context.Context, print model.EquityPrint) {
	join := darkflow.Join(print, p.equityQuotes, p.cfg.EquityQuoteMaxAgeMs)

	if !p.persist(ctx, store.TableEquityPrints, join) {
		return
	}
	if !p.publish(ctx, bus.SubjectEquityJoins, join) {
		return
	}

	spreadPct := 0.0
	if join.QuoteFresh && join.Mid != 0 {
		spreadPct = join.Spread / join.Mid
	}

	for _, ev := range p.dark.Observe(join, spreadPct, p.cfg.Dark) {
		if !p.persist(ctx, store.TableInferredDark, ev) {
			continue
		}
		if !p.publish(ctx, bus.SubjectInferredDark, ev) {
			continue
		}
		if p.metrics != nil {
			p.metrics.DarkEventEmitted(string(ev.Type))
		}
	}
}

// handleOptionPrint runs C7: classify the print's placement against the
// current option-NBBO cache, feed it into the cluster engine, and emit every
// cluster the engine flushes as a side effect.
func (p *Pipeline) handleOptionPrint(ctx context.Context, print model.OptionPrint) {
	classify := func(price float64) model.Placement {
		q, lk := p.optionQuotes.Get(print.OptionContractID, print.TS)
		return placement.Classify(price, placement.Quote{Bid: q.Bid, Ask: q.Ask, Stale: lk.Stale, Missing: lk.Missing})
	}

	for _, flushed := range p.clusters.Ingest(print, classify) {
		p.emitCluster(ctx, flushed.Cluster, print.TraceID)
	}
}

// emitCluster runs C8 through C10 over one freshly-closed cluster: enrich it
// into a contract packet, detect a multi-leg structure against the legs
// registry, persist and publish the contract packet (with structure tags
// attached if one was found), then run classifiers and alert scoring against
// it. If a structure was detected, build and independently run the companion
// structure packet through the same classify/score pipeline.
func (p *Pipeline) emitCluster(ctx context.Context, c cluster.Cluster, traceID string) {
	deps := enrich.Deps{OptionQuotes: p.optionQuotes, EquityQuotes: p.equityQuotes, Baselines: p.baselines}
	packet := enrich.Enrich(c, traceID, deps)

	var (
		summary      structure.Summary
		hasStructure bool
		members      []string
	)

	if contract, ok := contractid.Parse(c.ContractID); ok {
		leg := structure.Leg{
			ContractID: c.ContractID,
			Root:       contract.Root,
			Expiry:     contract.Expiry.Format("2006-01-02"),
			Strike:     contract.Strike,
			Right:      contract.Right,
			EndTS:      c.EndTS,
			Members:    c.Members,
		}
		candidates := p.legs.CandidateLegs(contract.Root, leg, c.EndTS, p.cfg.ClusterWindowMs)
		if s, ok := structure.Summarize(candidates, c.EndTS, p.cfg.ClusterWindowMs); ok {
			summary = s
			hasStructure = true
			members = unionMembers(candidates, s.ContractIDs)
			enrich.AttachStructure(packet.Features, summary)
		}
		p.legs.Record(leg)
	}

	p.processPacket(ctx, packet)

	if hasStructure {
		structPacket := enrich.BuildStructurePacket(summary, c.EndTS, traceID, members, packet)
		p.processPacket(ctx, structPacket)
	}
}

// processPacket runs C9 and C10 against one packet (contract or structure):
// persist and publish it, evaluate the classifier bank, persist and publish
// each hit, and score the hits into an alert if any fired.
func (p *Pipeline) processPacket(ctx context.Context, packet model.FlowPacket) {
	if !p.persist(ctx, store.TableFlowPackets, packet) {
		return
	}
	if !p.publish(ctx, bus.SubjectFlowPackets, packet) {
		return
	}
	if p.metrics != nil {
		p.metrics.PacketEmitted(string(packet.Kind))
	}

	hits := classifier.Evaluate(packet, p.cfg.Classifier)
	for _, hit := range hits {
		if !p.persist(ctx, store.TableClassifierHit, hit) {
			continue
		}
		if !p.publish(ctx, bus.SubjectClassifierHit, hit) {
			continue
		}
		if p.metrics != nil {
			p.metrics.HitEmitted(hit.ClassifierID)
		}
	}

	alert, ok := alertscore.Score(packet, hits)
	if !ok {
		return
	}
	if !p.persist(ctx, store.TableAlerts, alert) {
		return
	}
	if !p.publish(ctx, bus.SubjectAlerts, alert) {
		return
	}
	if p.metrics != nil {
		p.metrics.AlertEmitted(string(alert.Severity))
	}
	if p.notifier != nil {
		p.notifier.NotifyAlert(ctx, alert)
	}
}

// drain forcibly closes every live cluster and runs each one through the
// same emit path a normal flush would, so nothing accumulated before
// shutdown is lost.
func (p *Pipeline) drain(ctx context.Context) {
	for _, f := range p.clusters.FlushAll() {
		p.emitCluster(ctx, f.Cluster, "shutdown-drain:"+f.Cluster.ContractID)
	}
}

// unionMembers collects each candidate leg's cluster members, in the order
// Summarize already sorted its contract IDs into.
func unionMembers(legs []structure.Leg, contractIDs []string) []string {
	byContract := make(map[string][]string, len(legs))
	for _, l := range legs {
		byContract[l.ContractID] = l.Members
	}
	var out []string
	for _, id := range contractIDs {
		out = append(out, byContract[id]...)
	}
	return out
}

// persist inserts row into table with a bounded, jittered retry budget.
// Exhaustion logs, bumps the persistence-failure counter, and terminates the
// message (the caller returns without publishing or acking).
func (p *Pipeline) persist(ctx context.Context, table string, row store.Row) bool {
	b := &backoff.Backoff{Min: retryMin, Max: retryMax, Factor: retryFactor, Jitter: true}
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err := p.store.Insert(ctx, table, row); err == nil {
			return true
		} else if attempt == retryAttempts {
			log.Printf("❌ persist %s failed after %d attempts: %v", table, attempt, err)
		} else {
			time.Sleep(b.Duration())
		}
	}
	if p.metrics != nil {
		p.metrics.PersistenceFailure(table)
	}
	return false
}

// publish marshals row and publishes it to subject with the same bounded
// retry budget as persist.
func (p *Pipeline) publish(ctx context.Context, subject string, row any) bool {
	payload, err := json.Marshal(row)
	if err != nil {
		log.Printf("❌ publish %s: marshal failed: %v", subject, err)
		if p.metrics != nil {
			p.metrics.PublishFailure(subject)
		}
		return false
	}

	b := &backoff.Backoff{Min: retryMin, Max: retryMax, Factor: retryFactor, Jitter: true}
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err := p.bus.Publish(ctx, subject, payload); err == nil {
			return true
		} else if attempt == retryAttempts {
			log.Printf("❌ publish %s failed after %d attempts: %v", subject, attempt, err)
		} else {
			time.Sleep(b.Duration())
		}
	}
	if p.metrics != nil {
		p.metrics.PublishFailure(subject)
	}
	return false
}
