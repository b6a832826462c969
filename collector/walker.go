// Copyright 2024 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gosnmp/gosnmp"
	"go.uber.org/atomic"

	"github.com/prometheus/iftable_collector/scraper"
)

type ErrorKind int

const (
	TransportError ErrorKind = iota
	Timeout
	ApplicationError
)

func (k ErrorKind) String() string {
	switch k {
	case TransportError:
		return "transport"
	case Timeout:
		return "timeout"
	case ApplicationError:
		return "application"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// WalkError is the reason a table walk failed.
type WalkError struct {
	Kind   ErrorKind
	Target string
	Oid    string
	Err    error
}

func (e *WalkError) Error() string {
	return fmt.Sprintf("%s error walking %s on %s: %v", e.Kind, e.Oid, e.Target, e.Err)
}

func (e *WalkError) Unwrap() error {
	return e.Err
}

// WalkResult holds either the bindings of a completed walk, in the order
// they were received, or the error that ended it.
type WalkResult struct {
	PDUs []gosnmp.SnmpPDU
	Err  error
}

// TableWalker walks OID subtrees with successive GETBULK requests.
type TableWalker struct {
	session        scraper.Session
	maxRepetitions uint32
	logger         *slog.Logger
	metrics        Metrics
}

func NewTableWalker(session scraper.Session, maxRepetitions uint32, logger *slog.Logger, metrics Metrics) *TableWalker {
	if maxRepetitions == 0 {
		maxRepetitions = 1000
	}
	return &TableWalker{
		session:        session,
		maxRepetitions: maxRepetitions,
		logger:         logger,
		metrics:        metrics,
	}
}

// Walk starts walking the subtree under rootOid on target and returns
// immediately. done is called exactly once, from another goroutine, when
// the walk has completed or failed.
func (w *TableWalker) Walk(target *scraper.Target, rootOid string, done func(WalkResult)) {
	root, err := parseOid(rootOid)
	if err != nil {
		werr := &WalkError{Kind: TransportError, Target: target.String(), Oid: rootOid, Err: err}
		w.metrics.SNMPWalkErrors.WithLabelValues(werr.Kind.String()).Inc()
		go done(WalkResult{Err: werr})
		return
	}
	r := &walkRequest{
		walker:  w,
		target:  target,
		rootOid: listToOid(root),
		root:    root,
		cursor:  root,
		start:   time.Now(),
		done:    done,
		logger:  w.logger.With("target", target.String(), "oid", rootOid),
	}
	w.metrics.SNMPInflight.Inc()
	r.send(r.rootOid)
}

// Release drops the session connection of a target that is no longer
// walked.
func (w *TableWalker) Release(target *scraper.Target) {
	w.session.Release(target)
}

// walkRequest is the state of one walk. Only one request is outstanding at
// a time, so the fields are only touched by one callback at a time.
type walkRequest struct {
	walker  *TableWalker
	target  *scraper.Target
	rootOid string
	root    []int
	// Last accepted OID of the previous response, initially the root.
	cursor  []int
	pdus    []gosnmp.SnmpPDU
	pending atomic.Bool
	packets int
	start   time.Time
	done    func(WalkResult)
	logger  *slog.Logger
}

func (r *walkRequest) send(oid string) {
	r.pending.Store(true)
	r.packets++
	r.walker.session.Send(scraper.BulkRequest{
		OIDs:           []string{oid},
		NonRepeaters:   0,
		MaxRepetitions: r.walker.maxRepetitions,
	}, r.target, r.onResponse)
}

func (r *walkRequest) onResponse(packet *gosnmp.SnmpPacket, err error) {
	if !r.pending.CompareAndSwap(true, false) {
		r.logger.Warn("Ignoring response without outstanding request")
		return
	}
	if err != nil {
		kind := TransportError
		if errors.Is(err, scraper.ErrTimeout) {
			kind = Timeout
		}
		r.fail(kind, err)
		return
	}
	if packet == nil {
		r.fail(Timeout, scraper.ErrTimeout)
		return
	}
	if packet.Error != gosnmp.NoError {
		r.fail(ApplicationError, fmt.Errorf("%v (error index %d)", packet.Error, packet.ErrorIndex))
		return
	}
	if len(packet.Variables) == 0 {
		r.finish()
		return
	}

	var last []int
	for _, pdu := range packet.Variables {
		oid, ok := r.accept(pdu)
		if !ok {
			r.logger.Debug("Reached end of table", "end_oid", pdu.Name, "end_type", pdu.Type)
			r.finish()
			return
		}
		r.pdus = append(r.pdus, pdu)
		last = oid
	}
	r.cursor = last
	r.logger.Debug("Continuing walk", "next_oid", listToOid(last), "pdus", len(r.pdus))
	r.send(listToOid(last))
}

// accept reports whether pdu still belongs to the walk, that is it carries
// a value, lies strictly under the root and strictly after the cursor.
func (r *walkRequest) accept(pdu gosnmp.SnmpPDU) ([]int, bool) {
	switch pdu.Type {
	case gosnmp.EndOfMibView, gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return nil, false
	}
	if pdu.Name == "" {
		return nil, false
	}
	oid, err := parseOid(pdu.Name)
	if err != nil {
		return nil, false
	}
	if len(oid) <= len(r.root) || !hasPrefix(oid, r.root) {
		return nil, false
	}
	if compareOids(oid, r.cursor) <= 0 {
		return nil, false
	}
	return oid, true
}

func (r *walkRequest) finish() {
	r.observe()
	r.logger.Debug("Walk completed", "pdus", len(r.pdus), "packets", r.packets, "duration_seconds", time.Since(r.start).Seconds())
	r.done(WalkResult{PDUs: r.pdus})
}

func (r *walkRequest) fail(kind ErrorKind, err error) {
	r.observe()
	r.walker.metrics.SNMPWalkErrors.WithLabelValues(kind.String()).Inc()
	r.logger.Debug("Walk failed", "kind", kind, "err", err, "packets", r.packets)
	r.done(WalkResult{Err: &WalkError{Kind: kind, Target: r.target.String(), Oid: r.rootOid, Err: err}})
}

func (r *walkRequest) observe() {
	r.walker.metrics.SNMPInflight.Dec()
	r.walker.metrics.SNMPWalkDuration.Observe(time.Since(r.start).Seconds())
}
