package db

import (
	"context"
	"fmt"
	"time"

	"github.com/joshuapare/ngfkit/db/dirty"
	"github.com/joshuapare/ngfkit/internal/format"
)

// seqTx runs the header sequence protocol:
//  1. begin() - bump PrimarySeq when the first writer scope after a sync starts
//  2. [mutations - tracked by the dirty tracker]
//  3. commit() - flush data, set SecondarySeq=PrimarySeq, flush header
//
// If the process dies between begin and commit, PrimarySeq != SecondarySeq
// on disk and the next open reports the store as not clean.
//
// Callers must exclude writers while calling any method.
type seqTx struct {
	region interface{ Bytes() []byte }
	dt     *dirty.Tracker // nil for transient stores
	mode   dirty.FlushMode
	seq    uint32
	inTx   bool
}

func newSeqTx(region interface{ Bytes() []byte }, dt *dirty.Tracker, mode dirty.FlushMode) *seqTx {
	data := region.Bytes()
	primary := format.ReadU32(data, format.PrimarySeqOffset)
	return &seqTx{
		region: region,
		dt:     dt,
		mode:   mode,
		seq:    primary,
		// A store left unclean stays in its transaction until the next commit.
		inTx: primary != format.ReadU32(data, format.SecondarySeqOffset),
	}
}

// begin opens a transaction if none is active. It is idempotent.
func (t *seqTx) begin() {
	if t.inTx {
		return
	}
	data := t.region.Bytes()
	t.seq = format.ReadU32(data, format.PrimarySeqOffset) + 1
	format.PutU32(data, format.PrimarySeqOffset, t.seq)
	format.UpdateChecksum(data)
	t.inTx = true
}

// commit makes the transaction durable using the ordered flush protocol:
// data pages first, then the header carrying SecondarySeq, then fdatasync.
// Without an active transaction it does nothing.
func (t *seqTx) commit(ctx context.Context) error {
	if !t.inTx {
		return nil
	}
	if t.dt != nil {
		if err := t.dt.FlushDataOnly(ctx); err != nil {
			return fmt.Errorf("flush data pages: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data := t.region.Bytes()
	format.PutU32(data, format.SecondarySeqOffset, t.seq)
	format.PutU64(data, format.TimeStampOffset, uint64(time.Now().UnixNano()))
	format.UpdateChecksum(data)

	if t.dt != nil {
		if err := t.dt.FlushHeaderAndMeta(ctx, t.mode); err != nil {
			return fmt.Errorf("flush header: %w", err)
		}
	}
	t.inTx = false
	return nil
}

// reload re-reads the sequence state after another process wrote the header.
func (t *seqTx) reload() {
	data := t.region.Bytes()
	t.seq = format.ReadU32(data, format.PrimarySeqOffset)
	t.inTx = t.seq != format.ReadU32(data, format.SecondarySeqOffset)
}
