package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meshbridge/routeragent/pkg/adapter"
	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/version"
)

// dispatch routes one decoded inbound frame. PING/PONG/MODE_UPDATE are
// handled inline since they're cheap and must never queue behind slower
// work; everything else runs as an independent cooperative task gated by
// the concurrency limit.
func (s *Session) dispatch(ctx context.Context, connWG *sync.WaitGroup, env rpc.Envelope) {
	switch env.Type {
	case rpc.TypePing:
		reply, err := rpc.NewReply(env.ID, rpc.TypePong, struct{}{})
		if err == nil {
			_ = s.writeEnvelope(reply)
		}
	case rpc.TypePong:
		select {
		case s.pongCh <- struct{}{}:
		default:
		}
	case rpc.TypeModeUpdate:
		s.handleModeUpdate(env)
	case rpc.TypeStatusReq:
		s.spawn(connWG, func() { s.handleStatusRequest(ctx, env) })
	case rpc.TypeConfigPush:
		s.spawn(connWG, func() { s.handleConfigPush(ctx, env) })
	case rpc.TypeConfigFull:
		s.spawn(connWG, func() { s.handleConfigFull(ctx, env) })
	case rpc.TypeExec:
		s.spawn(connWG, func() { s.handleExec(ctx, env) })
	case rpc.TypeReboot:
		s.spawn(connWG, func() { s.handleReboot(ctx, env) })
	case rpc.TypeUpgrade:
		s.spawn(connWG, func() { s.handleUpgrade(ctx, env) })
	default:
		_ = s.writeEnvelope(rpc.NewErrorEnvelope(env.ID, "UNSUPPORTED", fmt.Sprintf("agent does not handle %s", env.Type)))
	}
}

// spawn runs fn as an independent dispatcher task: connWG tracks it for the
// disconnect drain window, and the session-wide semaphore bounds how many
// run concurrently.
func (s *Session) spawn(connWG *sync.WaitGroup, fn func()) {
	connWG.Add(1)
	go func() {
		defer connWG.Done()
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
		fn()
	}()
}

func (s *Session) handleModeUpdate(env rpc.Envelope) {
	var p rpc.ModeUpdatePayload
	if err := rpc.DecodePayload(env, &p); err != nil {
		_ = s.writeEnvelope(rpc.NewErrorEnvelope(env.ID, "MALFORMED", err.Error()))
		return
	}
	if !p.Mode.Valid() {
		_ = s.writeEnvelope(rpc.NewErrorEnvelope(env.ID, "MALFORMED", "mode is not a recognized value"))
		return
	}

	s.mu.Lock()
	if p.Section == "" {
		s.mode.Default = p.Mode
	} else {
		if s.mode.Overrides == nil {
			s.mode.Overrides = make(map[rpc.Section]rpc.Mode)
		}
		s.mode.Overrides[p.Section] = p.Mode
	}
	s.mu.Unlock()

	reply, err := rpc.NewReply(env.ID, rpc.TypeModeAck, rpc.ModeAckPayload{Section: p.Section, Mode: p.Mode})
	if err == nil {
		_ = s.writeEnvelope(reply)
	}
}

func (s *Session) handleStatusRequest(ctx context.Context, env rpc.Envelope) {
	_ = env // STATUS_REQUEST has no id-echoing reply; it triggers a fresh ad-hoc STATUS
	payload := s.col.Status(ctx, version.Info())
	fresh, err := rpc.NewEnvelope(rpc.TypeStatus, payload)
	if err != nil {
		s.log.WithError(err).Error("agent: building ad-hoc STATUS")
		return
	}
	_ = s.writeEnvelope(fresh)
}

func (s *Session) handleExec(ctx context.Context, env rpc.Envelope) {
	var p rpc.ExecPayload
	if err := rpc.DecodePayload(env, &p); err != nil {
		_ = s.writeEnvelope(rpc.NewErrorEnvelope(env.ID, "MALFORMED", err.Error()))
		return
	}

	if !s.registry.AllowedCommand(p.Command) {
		reply, _ := rpc.NewReply(env.ID, rpc.TypeExecResult, rpc.ExecResultPayload{
			ExitCode: deniedExitCode, Stderr: "not permitted",
		})
		_ = s.writeEnvelope(reply)
		return
	}

	timeout := time.Duration(p.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	exitCode, stdout, stderr, timedOut := s.exec(ctx, p.Command, p.Args, timeout)
	reply, err := rpc.NewReply(env.ID, rpc.TypeExecResult, rpc.ExecResultPayload{
		ExitCode: exitCode, Stdout: stdout, Stderr: stderr, TimedOut: timedOut,
	})
	if err == nil {
		_ = s.writeEnvelope(reply)
	}
}

func (s *Session) handleReboot(ctx context.Context, env rpc.Envelope) {
	var p rpc.RebootPayload
	_ = rpc.DecodePayload(env, &p)

	reply, err := rpc.NewReply(env.ID, rpc.TypeExecResult, rpc.ExecResultPayload{Scheduled: true})
	if err == nil {
		_ = s.writeEnvelope(reply)
	}

	s.log.WithField("delay_sec", p.DelaySec).Warn("agent: reboot scheduled")
	if s.reboot != nil {
		if err := s.reboot(ctx, p.DelaySec); err != nil {
			s.log.WithError(err).Error("agent: reboot action failed")
		}
	}
}

func (s *Session) handleUpgrade(ctx context.Context, env rpc.Envelope) {
	var p rpc.UpgradePayload
	_ = rpc.DecodePayload(env, &p)

	reply, err := rpc.NewReply(env.ID, rpc.TypeExecResult, rpc.ExecResultPayload{Scheduled: true})
	if err == nil {
		_ = s.writeEnvelope(reply)
	}

	s.log.WithField("target_version", p.TargetVersion).Warn("agent: upgrade scheduled")
	if s.upgrade != nil {
		if err := s.upgrade(ctx, p.TargetVersion); err != nil {
			s.log.WithError(err).Error("agent: upgrade action failed")
		}
	}
}

func (s *Session) handleConfigPush(ctx context.Context, env rpc.Envelope) {
	var p rpc.ConfigPushPayload
	if err := rpc.DecodePayload(env, &p); err != nil {
		_ = s.writeEnvelope(rpc.NewErrorEnvelope(env.ID, "MALFORMED", err.Error()))
		return
	}
	s.applySection(ctx, env.ID, p.Section, p.Version, adapter.Document(p.Document))
}

// applySection implements the CONFIG_PUSH dispatch rule: idempotent replay
// for an already-applied-or-newer version, otherwise validate -> diff ->
// apply, serialized per section so distinct sections proceed independently.
func (s *Session) applySection(ctx context.Context, requestID string, section rpc.Section, ver rpc.SectionVersion, doc adapter.Document) {
	lock := s.sectionLock(section)
	lock.Lock()
	defer lock.Unlock()

	a, ok := s.registry.Get(section)
	if !ok {
		s.sendConfigFail(requestID, section, ver, "", nil, "section not registered")
		return
	}

	if ver <= s.appliedVersion(section) {
		diff, err := a.Diff(ctx, doc)
		if err != nil {
			s.sendConfigFail(requestID, section, ver, "diff", nil, err.Error())
			return
		}
		s.sendConfigAck(requestID, section, ver, diff)
		return
	}

	issues := a.Validate(doc)
	if rpc.HasErrors(issues) {
		s.sendConfigFail(requestID, section, ver, "validate", issues, "")
		return
	}

	result, err := a.Apply(ctx, doc, ver)
	if err != nil {
		s.sendConfigFail(requestID, section, ver, result.Step, nil, err.Error())
		return
	}

	s.setAppliedVersion(section, ver)
	s.sendConfigAck(requestID, section, ver, result.Diff)
}

// handleConfigFull applies a coordinated multi-section batch: every section
// is pre-validated before any mutation runs, sections apply in dependency
// order, and a mid-batch apply failure rolls back everything already
// applied in this batch, in reverse order.
func (s *Session) handleConfigFull(ctx context.Context, env rpc.Envelope) {
	var p rpc.ConfigFullPayload
	if err := rpc.DecodePayload(env, &p); err != nil {
		_ = s.writeEnvelope(rpc.NewErrorEnvelope(env.ID, "MALFORMED", err.Error()))
		return
	}

	ordered := make([]rpc.Section, 0, len(p.Sections))
	for _, section := range rpc.DependencyOrder {
		if _, ok := p.Sections[section]; ok {
			ordered = append(ordered, section)
		}
	}

	for _, section := range ordered {
		a, ok := s.registry.Get(section)
		if !ok {
			s.sendConfigFail(env.ID, section, p.Version, "", nil, "section not registered")
			return
		}
		issues := a.Validate(adapter.Document(p.Sections[section]))
		if rpc.HasErrors(issues) {
			s.sendConfigFail(env.ID, section, p.Version, "validate", issues, "")
			return
		}
	}

	var applied []rpc.Section
	for _, section := range ordered {
		lock := s.sectionLock(section)
		lock.Lock()
		a, _ := s.registry.Get(section)
		result, err := a.Apply(ctx, adapter.Document(p.Sections[section]), p.Version)
		lock.Unlock()

		if err != nil {
			s.rollbackBatch(ctx, applied)
			s.sendConfigFail(env.ID, section, p.Version, result.Step, nil, err.Error())
			return
		}
		s.setAppliedVersion(section, p.Version)
		applied = append(applied, section)
		s.sendConfigAck(env.ID, section, p.Version, result.Diff)
	}
}

func (s *Session) rollbackBatch(ctx context.Context, applied []rpc.Section) {
	for i := len(applied) - 1; i >= 0; i-- {
		section := applied[i]
		a, ok := s.registry.Get(section)
		if !ok {
			continue
		}
		lock := s.sectionLock(section)
		lock.Lock()
		if _, err := a.Rollback(ctx); err != nil {
			s.log.WithError(err).WithField("section", section).Error("agent: batch rollback failed")
		}
		lock.Unlock()
	}
}

func (s *Session) sendConfigAck(requestID string, section rpc.Section, ver rpc.SectionVersion, diff rpc.ConfigDiff) {
	reply, err := rpc.NewReply(requestID, rpc.TypeConfigAck, rpc.ConfigAckPayload{Section: section, Version: ver, Diff: diff})
	if err != nil {
		s.log.WithError(err).Error("agent: building CONFIG_ACK")
		return
	}
	_ = s.writeEnvelope(reply)
}

func (s *Session) sendConfigFail(requestID string, section rpc.Section, ver rpc.SectionVersion, step string, issues []rpc.ValidationIssue, message string) {
	reply, err := rpc.NewReply(requestID, rpc.TypeConfigFail, rpc.ConfigFailPayload{
		Section: section, Version: ver, Step: step, Issues: issues, Message: message,
	})
	if err != nil {
		s.log.WithError(err).Error("agent: building CONFIG_FAIL")
		return
	}
	_ = s.writeEnvelope(reply)
}

func (s *Session) sectionLock(section rpc.Section) *sync.Mutex {
	s.sectionLocksMu.Lock()
	defer s.sectionLocksMu.Unlock()
	if s.sectionLocks == nil {
		s.sectionLocks = make(map[rpc.Section]*sync.Mutex)
	}
	lock, ok := s.sectionLocks[section]
	if !ok {
		lock = &sync.Mutex{}
		s.sectionLocks[section] = lock
	}
	return lock
}

func (s *Session) appliedVersion(section rpc.Section) rpc.SectionVersion {
	s.appliedMu.Lock()
	defer s.appliedMu.Unlock()
	return s.applied[section]
}

func (s *Session) setAppliedVersion(section rpc.Section, ver rpc.SectionVersion) {
	s.appliedMu.Lock()
	defer s.appliedMu.Unlock()
	if s.applied == nil {
		s.applied = make(map[rpc.Section]rpc.SectionVersion)
	}
	s.applied[section] = ver
}
