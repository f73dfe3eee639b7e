// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package chainstore is the root database façade (spec §4.9): it composes
// the block, spend, transaction, history, and stealth tables into
// push(block)/pop() operations with the ordering contract that makes
// crash recovery idempotent, guarded by a single process-wide directory
// lock and a sequence lock for lock-free readers.
package chainstore

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/go-chainstore/chainstore/chainwire"
	"github.com/go-chainstore/chainstore/internal/dirlock"
	"github.com/go-chainstore/chainstore/internal/errkind"
	"github.com/go-chainstore/chainstore/internal/mmapfile"
	"github.com/go-chainstore/chainstore/internal/seqlock"
	"github.com/go-chainstore/chainstore/tables"
)

// Options configures Open. Zero values pick sane defaults; components
// are constructed from plain Go structs rather than a config-file
// format.
type Options struct {
	// BucketCount sizes every hash-table-backed component (the block
	// lookup, spend, transaction, and history-index tables). Defaults to
	// 1024.
	BucketCount uint32

	// ShardMaxEntries is the number of block heights the stealth history
	// shard reserves index slots for. Defaults to 1<<20.
	ShardMaxEntries uint64

	// HistoryActiveHeight is the height at which the history table
	// starts recording spend rows (spec §4.9 step 2); output rows are
	// always recorded regardless of height. Zero records spends from
	// genesis onward.
	HistoryActiveHeight uint32

	// Logger receives slow-path diagnostics: opening or initializing
	// the database and duplicate-transaction skips. File growth and
	// sync are not logged. Defaults to a discard logger --
	// library code never logs on the hot (lookup) path.
	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.BucketCount == 0 {
		o.BucketCount = 1024
	}
	if o.ShardMaxEntries == 0 {
		o.ShardMaxEntries = 1 << 20
	}
}

// DB is an open chainstore database. The zero value is not usable; build
// one with Open.
type DB struct {
	dir    *dirlock.Lock
	seq    seqlock.SeqLock
	logger *slog.Logger

	historyActiveHeight uint32

	blocksLookup, blocksDir, blocksBodies *mmapfile.File
	spendFile                             *mmapfile.File
	txFile                                *mmapfile.File
	historyIndex, historyRows             *mmapfile.File
	stealthIndex                          *mmapfile.File

	blocks  *tables.BlockTable
	spends  *tables.SpendTable
	txs     *tables.TxTable
	history *tables.HistoryTable
	stealth *tables.StealthTable
}

// Open acquires dir's directory lock and opens (creating if necessary)
// every backing file of every table. A brand-new directory gets fresh,
// empty tables; an existing one is resumed as-is -- including whatever
// auxiliary-table-ahead-of-blocks-table state a crash mid-push left
// behind (spec §7's "user-visible failure behaviour").
func Open(dir string, opts Options) (*DB, error) {
	opts.setDefaults()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chainstore: mkdir %s: %w", dir, err)
	}

	lock, err := dirlock.Acquire(dir)
	if err != nil {
		return nil, err
	}

	db := &DB{dir: lock, logger: opts.Logger, historyActiveHeight: opts.HistoryActiveHeight}
	fail := func(err error) (*DB, error) {
		db.closeFiles()
		_ = lock.Close()
		return nil, err
	}

	var fresh bool
	if db.blocksLookup, fresh, err = openFile(filepath.Join(dir, "blocks_lookup")); err != nil {
		return fail(err)
	}
	if db.blocksDir, _, err = openFile(filepath.Join(dir, "blocks_dir")); err != nil {
		return fail(err)
	}
	if db.blocksBodies, _, err = openFile(filepath.Join(dir, "blocks_bodies")); err != nil {
		return fail(err)
	}
	if db.spendFile, _, err = openFile(filepath.Join(dir, "spends")); err != nil {
		return fail(err)
	}
	if db.txFile, _, err = openFile(filepath.Join(dir, "txs")); err != nil {
		return fail(err)
	}
	if db.historyIndex, _, err = openFile(filepath.Join(dir, "history_lookup")); err != nil {
		return fail(err)
	}
	if db.historyRows, _, err = openFile(filepath.Join(dir, "history_rows")); err != nil {
		return fail(err)
	}
	if db.stealthIndex, _, err = openFile(filepath.Join(dir, "stealth_index")); err != nil {
		return fail(err)
	}

	if fresh {
		opts.Logger.Info("initializing new chainstore database", "dir", dir)
		if db.blocks, err = tables.InitializeNew(db.blocksLookup, opts.BucketCount, db.blocksDir, db.blocksBodies); err != nil {
			return fail(err)
		}
		if db.spends, err = tables.InitializeNewSpend(db.spendFile, opts.BucketCount); err != nil {
			return fail(err)
		}
		if db.txs, err = tables.InitializeNewTx(db.txFile, opts.BucketCount); err != nil {
			return fail(err)
		}
		if db.history, err = tables.InitializeNewHistory(db.historyIndex, opts.BucketCount, db.historyRows); err != nil {
			return fail(err)
		}
		if db.stealth, err = tables.InitializeNewStealth(db.stealthIndex, opts.ShardMaxEntries); err != nil {
			return fail(err)
		}
		return db, nil
	}

	opts.Logger.Info("opening existing chainstore database", "dir", dir)
	if db.blocks, err = tables.Start(db.blocksLookup, db.blocksDir, db.blocksBodies); err != nil {
		return fail(err)
	}
	if db.spends, err = tables.StartSpend(db.spendFile); err != nil {
		return fail(err)
	}
	if db.txs, err = tables.StartTx(db.txFile); err != nil {
		return fail(err)
	}
	if db.history, err = tables.StartHistory(db.historyIndex, db.historyRows); err != nil {
		return fail(err)
	}
	if db.stealth, err = tables.StartStealth(db.stealthIndex, opts.ShardMaxEntries); err != nil {
		return fail(err)
	}
	return db, nil
}

// openFile ensures path exists (creating it with the single sentinel
// byte mmapfile.Open requires) and maps it, reporting whether it had to
// be created.
func openFile(path string) (mf *mmapfile.File, fresh bool, err error) {
	_, statErr := os.Stat(path)
	fresh = os.IsNotExist(statErr)
	if err := mmapfile.CreateEmpty(path); err != nil {
		return nil, false, fmt.Errorf("chainstore: create %s: %w: %w", path, err, errkind.IO)
	}
	mf, err = mmapfile.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("chainstore: open %s: %w: %w", path, err, errkind.IO)
	}
	return mf, fresh, nil
}

func (db *DB) closeFiles() {
	for _, mf := range []*mmapfile.File{
		db.blocksLookup, db.blocksDir, db.blocksBodies,
		db.spendFile, db.txFile,
		db.historyIndex, db.historyRows,
		db.stealthIndex,
	} {
		if mf != nil {
			_ = mf.Close()
		}
	}
}

// Close releases the directory lock and unmaps every backing file.
func (db *DB) Close() error {
	db.closeFiles()
	return db.dir.Close()
}

func isCoinbase(tx *wire.MsgTx) bool {
	return len(tx.TxIn) == 1 &&
		tx.TxIn[0].PreviousOutPoint.Index == 0xffffffff &&
		tx.TxIn[0].PreviousOutPoint.Hash == chainhash.Hash{}
}

// resolveOutput looks up the transaction output named by point, decoding
// the owning transaction out of the transaction table. ok is false if
// the transaction isn't known or point.Index is out of range.
func (db *DB) resolveOutput(point tables.Point) (out *wire.TxOut, ok bool, err error) {
	_, _, serializedTx, found, err := db.txs.Get(point.Hash)
	if err != nil || !found {
		return nil, false, err
	}
	tx, err := chainwire.DecodeTx(serializedTx)
	if err != nil {
		return nil, false, err
	}
	if int(point.Index) >= len(tx.TxOut) {
		return nil, false, nil
	}
	return tx.TxOut[point.Index], true, nil
}

// Push decodes raw as a serialized Bitcoin block and appends it as the
// new tip, implementing spec §4.9's push(block) step by step: spend and
// history rows for every transaction, stealth-pair detection over every
// transaction's outputs, then the auxiliary tables (spend, transaction,
// history, stealth) synced before the block table -- the block table's
// sync is the global commit point a crash-recovery reader relies on.
func (db *DB) Push(raw []byte) (height uint32, err error) {
	msg, err := chainwire.DecodeBlock(raw)
	if err != nil {
		return 0, err
	}

	last := db.blocks.LastHeight()
	if last == tables.NullHeight {
		height = 0
	} else {
		height = last + 1
	}

	db.seq.Begin()
	defer db.seq.End()

	for indexInBlock, tx := range msg.Transactions {
		if tables.IsHistoricalDuplicate(height, uint32(indexInBlock)) {
			db.logger.Warn("skipping historical duplicate transaction", "height", height, "index", indexInBlock)
			continue
		}
		txHash := tx.TxHash()

		if !isCoinbase(tx) {
			for inIdx, in := range tx.TxIn {
				outpoint := tables.Point{Hash: in.PreviousOutPoint.Hash, Index: in.PreviousOutPoint.Index}
				inpoint := tables.Point{Hash: txHash, Index: uint32(inIdx)}
				if err := db.spends.Store(outpoint, inpoint); err != nil {
					return 0, err
				}
				if height < db.historyActiveHeight {
					continue
				}
				out, ok, err := db.resolveOutput(outpoint)
				if err != nil {
					return 0, err
				}
				if !ok {
					continue
				}
				addrHash, ok := chainwire.AddressHash(out.PkScript)
				if !ok {
					continue
				}
				if err := db.history.Add(addrHash, tables.HistoryRow{
					Kind:            tables.RowSpend,
					Point:           outpoint,
					Height:          height,
					ValueOrChecksum: uint64(out.Value),
				}); err != nil {
					return 0, err
				}
			}
		}

		for outIdx, out := range tx.TxOut {
			addrHash, ok := chainwire.AddressHash(out.PkScript)
			if !ok {
				continue
			}
			if err := db.history.Add(addrHash, tables.HistoryRow{
				Kind:            tables.RowOutput,
				Point:           tables.Point{Hash: txHash, Index: uint32(outIdx)},
				Height:          height,
				ValueOrChecksum: uint64(out.Value),
			}); err != nil {
				return 0, err
			}
		}

		for outIdx := range tx.TxOut {
			pair, ok := chainwire.ExtractStealthPair(tx.TxOut, outIdx)
			if !ok {
				continue
			}
			if err := db.stealth.Add(pair.Prefix, tables.StealthRow{
				EphemeralPubkeyHash160: pair.EphemeralPubkeyHash160,
				AddressHash:            pair.AddressHash,
				TxHash:                 txHash,
			}); err != nil {
				return 0, err
			}
		}

		serializedTx, err := chainwire.EncodeTx(tx)
		if err != nil {
			return 0, err
		}
		if err := db.txs.Store(txHash, height, uint32(indexInBlock), serializedTx); err != nil {
			return 0, err
		}
	}

	header, err := chainwire.EncodeHeader(&msg.Header)
	if err != nil {
		return 0, err
	}
	block := &tables.Block{Header: header}
	for _, tx := range msg.Transactions {
		block.TxHashes = append(block.TxHashes, tx.TxHash())
	}
	if _, err := db.blocks.Store(block); err != nil {
		return 0, err
	}

	if err := db.spends.Sync(); err != nil {
		return 0, err
	}
	if err := db.txs.Sync(); err != nil {
		return 0, err
	}
	if err := db.history.Sync(); err != nil {
		return 0, err
	}
	if err := db.stealth.Sync(uint64(height)); err != nil {
		return 0, err
	}
	if err := db.blocks.Sync(); err != nil {
		return 0, err
	}

	return height, nil
}

// Pop removes the current tip block and returns it, implementing spec
// §4.9's pop() in the mirror order of Push: transactions unwind in
// reverse, each one removing its output history rows before its input
// spend and spend-history rows, then the stealth table and finally the
// block table itself are rolled back to the previous height.
//
// The two historical duplicate transactions (spec §4.8, §9) were never
// recorded in the transaction table, so Pop cannot recover their
// serialized bytes; the returned block omits them at their original
// index. This is the one place the duplicate-skip policy is visibly
// lossy, and it only affects two specific transactions on mainnet.
func (db *DB) Pop() (*wire.MsgBlock, error) {
	height := db.blocks.LastHeight()
	if height == tables.NullHeight {
		return nil, fmt.Errorf("chainstore: pop: database is empty: %w", errkind.NotFound)
	}

	db.seq.Begin()
	defer db.seq.End()

	block, err := db.blocks.Get(height)
	if err != nil {
		return nil, err
	}

	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(block.Header[:])); err != nil {
		return nil, fmt.Errorf("chainstore: pop: decode header: %w", err)
	}
	result := wire.NewMsgBlock(&header)
	txs := make([]*wire.MsgTx, len(block.TxHashes))

	for i := len(block.TxHashes) - 1; i >= 0; i-- {
		if tables.IsHistoricalDuplicate(height, uint32(i)) {
			continue
		}
		hash := block.TxHashes[i]

		_, _, serializedTx, ok, err := db.txs.Get(hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("chainstore: pop: tx %s at height %d not found: %w", hash, height, errkind.Corrupt)
		}
		tx, err := chainwire.DecodeTx(serializedTx)
		if err != nil {
			return nil, err
		}
		txs[i] = tx

		for outIdx := len(tx.TxOut) - 1; outIdx >= 0; outIdx-- {
			addrHash, ok := chainwire.AddressHash(tx.TxOut[outIdx].PkScript)
			if !ok {
				continue
			}
			if err := db.history.DeleteLast(addrHash); err != nil {
				return nil, err
			}
		}

		if !isCoinbase(tx) {
			for inIdx := len(tx.TxIn) - 1; inIdx >= 0; inIdx-- {
				in := tx.TxIn[inIdx]
				outpoint := tables.Point{Hash: in.PreviousOutPoint.Hash, Index: in.PreviousOutPoint.Index}

				if height >= db.historyActiveHeight {
					out, ok, err := db.resolveOutput(outpoint)
					if err != nil {
						return nil, err
					}
					if ok {
						if addrHash, ok := chainwire.AddressHash(out.PkScript); ok {
							if err := db.history.DeleteLast(addrHash); err != nil {
								return nil, err
							}
						}
					}
				}

				if _, err := db.spends.Unlink(outpoint); err != nil {
					return nil, err
				}
			}
		}

		if _, err := db.txs.Unlink(hash); err != nil {
			return nil, err
		}
	}

	for _, tx := range txs {
		if tx != nil {
			result.AddTransaction(tx)
		}
	}

	if err := db.stealth.Unlink(uint64(height)); err != nil {
		return nil, err
	}
	if err := db.blocks.Unlink(height); err != nil {
		return nil, err
	}

	return result, nil
}

type blockResult struct {
	block *tables.Block
	err   error
}

// LastHeight returns the height of the current tip, or tables.NullHeight
// if the database is empty. Safe to call concurrently with a writer.
func (db *DB) LastHeight() uint32 {
	return seqlock.Read(&db.seq, func() uint32 { return db.blocks.LastHeight() })
}

// Block returns the block stored at height. Safe to call concurrently
// with a writer.
func (db *DB) Block(height uint32) (*tables.Block, error) {
	r := seqlock.Read(&db.seq, func() blockResult {
		b, err := db.blocks.Get(height)
		return blockResult{b, err}
	})
	return r.block, r.err
}

type blockByHashResult struct {
	height uint32
	block  *tables.Block
	ok     bool
	err    error
}

// BlockByHash returns the height and block whose header hashes to hash.
// Safe to call concurrently with a writer.
func (db *DB) BlockByHash(hash chainhash.Hash) (height uint32, block *tables.Block, ok bool, err error) {
	r := seqlock.Read(&db.seq, func() blockByHashResult {
		height, block, ok, err := db.blocks.GetByHash(hash)
		return blockByHashResult{height, block, ok, err}
	})
	return r.height, r.block, r.ok, r.err
}

type historyResult struct {
	rows []tables.HistoryRow
	err  error
}

// AddressHistory returns addressHash's recorded history, most recently
// added first. Safe to call concurrently with a writer.
func (db *DB) AddressHistory(addressHash [20]byte) ([]tables.HistoryRow, error) {
	r := seqlock.Read(&db.seq, func() historyResult {
		rows, err := db.history.Rows(addressHash)
		return historyResult{rows, err}
	})
	return r.rows, r.err
}

// ScanStealth visits every recorded stealth row whose prefix starts with
// the top prefixBits bits of prefix, across entries from fromHeight
// onward. Safe to call concurrently with a writer.
func (db *DB) ScanStealth(prefix uint32, prefixBits int, fromHeight uint64, cb func(tables.StealthRow)) error {
	return seqlock.Read(&db.seq, func() error {
		return db.stealth.Scan(prefix, prefixBits, fromHeight, cb)
	})
}
