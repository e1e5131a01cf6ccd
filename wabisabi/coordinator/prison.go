// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
)

// Big endian is the preferred byte order, due to cursor scans over integer
// keys iterating in order.
var byteOrder = binary.BigEndian

// bucketPrison is the top level bucket holding one record per banned
// outpoint.
var bucketPrison = []byte("prison")

// Reason is the offense an input was banned for.
type Reason uint8

// These constants are the offenses the coordinator punishes.
const (
	// ReasonFailedToConfirm is given to inputs that did not confirm their
	// connection.
	ReasonFailedToConfirm Reason = iota + 1

	// ReasonFailedToSign is given to inputs that did not sign the
	// coinjoin.
	ReasonFailedToSign

	// ReasonDoubleSpent is given to inputs spent while the round was in
	// progress.
	ReasonDoubleSpent
)

var reasonStrings = map[Reason]string{
	ReasonFailedToConfirm: "FailedToConfirm",
	ReasonFailedToSign:    "FailedToSign",
	ReasonDoubleSpent:     "DoubleSpent",
}

// String returns the offense name.
func (r Reason) String() string {
	if s, ok := reasonStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Reason (%d)", uint8(r))
}

// Offender is a banned outpoint.
type Offender struct {
	Outpoint wire.OutPoint
	Reason   Reason
	RoundID  chainhash.Hash
	Started  time.Time

	// LongBan is set for double spends and repeated offenses.
	LongBan bool
}

// Prison keeps the outpoints banned from registering for a while. Records
// are persisted so bans survive restarts.
type Prison struct {
	db       walletdb.DB
	shortBan time.Duration
	longBan  time.Duration

	// mu serializes punishments so a repeated offense is always seen.
	mu sync.Mutex
}

// NewPrison opens the prison stored in db, creating its bucket if needed.
func NewPrison(db walletdb.DB, shortBan, longBan time.Duration) (*Prison,
	error) {

	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(bucketPrison)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create prison bucket: %w", err)
	}

	return &Prison{db: db, shortBan: shortBan, longBan: longBan}, nil
}

// keyOffender returns the canonical 36 byte outpoint key.
func keyOffender(op *wire.OutPoint) []byte {
	k := make([]byte, 36)
	copy(k, op.Hash[:])
	byteOrder.PutUint32(k[32:36], op.Index)

	return k
}

// valueOffender serializes an offender as
// [reason 1][round id 32][started unix nanos 8][long 1].
func valueOffender(o *Offender) []byte {
	v := make([]byte, 42)
	v[0] = byte(o.Reason)
	copy(v[1:33], o.RoundID[:])
	byteOrder.PutUint64(v[33:41], uint64(o.Started.UnixNano()))
	if o.LongBan {
		v[41] = 1
	}

	return v
}

func readRawOffender(k, v []byte, o *Offender) error {
	if len(k) != 36 || len(v) != 42 {
		return errors.New("short prison record")
	}

	copy(o.Outpoint.Hash[:], k[:32])
	o.Outpoint.Index = byteOrder.Uint32(k[32:36])
	o.Reason = Reason(v[0])
	copy(o.RoundID[:], v[1:33])
	o.Started = time.Unix(0, int64(byteOrder.Uint64(v[33:41])))
	o.LongBan = v[41] == 1

	return nil
}

func fetchOffender(b walletdb.ReadBucket, op *wire.OutPoint) (*Offender,
	error) {

	k := keyOffender(op)
	v := b.Get(k)
	if v == nil {
		return nil, nil
	}

	var o Offender
	if err := readRawOffender(k, v, &o); err != nil {
		return nil, err
	}

	return &o, nil
}

// Punish bans op for reason. Double spends and inputs that are punished
// again while still banned get a long ban.
func (p *Prison) Punish(op wire.OutPoint, reason Reason,
	roundID chainhash.Hash, now time.Time) (*Offender, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	o := &Offender{
		Outpoint: op,
		Reason:   reason,
		RoundID:  roundID,
		Started:  now,
		LongBan:  reason == ReasonDoubleSpent,
	}

	err := walletdb.Update(p.db, func(tx walletdb.ReadWriteTx) error {
		b := tx.ReadWriteBucket(bucketPrison)

		prev, err := fetchOffender(b, &op)
		if err != nil {
			return err
		}
		if prev != nil && now.Before(p.releaseTime(prev)) {
			o.LongBan = true
		}

		return b.Put(keyOffender(&op), valueOffender(o))
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Input %v banned until %v: %v", op, p.releaseTime(o),
		reason)

	return o, nil
}

// releaseTime returns when o's ban ends.
func (p *Prison) releaseTime(o *Offender) time.Time {
	if o.LongBan {
		return o.Started.Add(p.longBan)
	}
	return o.Started.Add(p.shortBan)
}

// BannedUntil reports whether op is banned at now and, if so, until when
// and whether the ban is a long one.
func (p *Prison) BannedUntil(op wire.OutPoint, now time.Time) (time.Time,
	bool, bool, error) {

	var o *Offender
	err := walletdb.View(p.db, func(tx walletdb.ReadTx) error {
		var err error
		o, err = fetchOffender(tx.ReadBucket(bucketPrison), &op)
		return err
	})
	if err != nil || o == nil {
		return time.Time{}, false, false, err
	}

	until := p.releaseTime(o)
	if !now.Before(until) {
		return time.Time{}, false, false, nil
	}

	return until, o.LongBan, true, nil
}

// Offenders returns every record in the prison.
func (p *Prison) Offenders() ([]Offender, error) {
	var offenders []Offender
	err := walletdb.View(p.db, func(tx walletdb.ReadTx) error {
		b := tx.ReadBucket(bucketPrison)
		return b.ForEach(func(k, v []byte) error {
			var o Offender
			if err := readRawOffender(k, v, &o); err != nil {
				return err
			}
			offenders = append(offenders, o)
			return nil
		})
	})

	return offenders, err
}

// ReleaseEligible removes the records whose ban ended before now and
// returns how many were released.
func (p *Prison) ReleaseEligible(now time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var released [][]byte
	err := walletdb.Update(p.db, func(tx walletdb.ReadWriteTx) error {
		b := tx.ReadWriteBucket(bucketPrison)
		err := b.ForEach(func(k, v []byte) error {
			var o Offender
			if err := readRawOffender(k, v, &o); err != nil {
				return err
			}
			if !now.Before(p.releaseTime(&o)) {
				released = append(released,
					append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range released {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(released) > 0 {
		log.Debugf("Released %d %s from prison", len(released),
			pickNoun(len(released), "input", "inputs"))
	}

	return len(released), nil
}

// Release pardons op before its ban ends. It reports whether op was banned.
func (p *Prison) Release(op wire.OutPoint) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var found bool
	err := walletdb.Update(p.db, func(tx walletdb.ReadWriteTx) error {
		b := tx.ReadWriteBucket(bucketPrison)
		k := keyOffender(&op)
		if b.Get(k) == nil {
			return nil
		}

		found = true
		return b.Delete(k)
	})
	if err != nil {
		return false, err
	}

	if found {
		log.Infof("Input %v released from prison", op)
	}

	return found, nil
}
