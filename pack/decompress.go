package pack

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// decompressPool manages reusable zstd decoders to reduce allocation overhead.
type decompressPool struct {
	pool             sync.Pool
	maxDecoderMemory uint64
}

func newDecompressPool(maxMemory uint64) *decompressPool {
	return &decompressPool{maxDecoderMemory: maxMemory}
}

// decode decompresses src. The output is capped at limit bytes when limit is
// non-zero.
func (p *decompressPool) decode(src []byte, sizeHint, limit uint64) ([]byte, error) {
	dec, release, err := p.get()
	if err != nil {
		return nil, err
	}
	defer release()

	var dst []byte
	if sizeHint > 0 && (limit == 0 || sizeHint <= limit) {
		dst = make([]byte, 0, sizeHint)
	}
	out, err := dec.DecodeAll(src, dst)
	if err != nil {
		return nil, err
	}
	if limit > 0 && uint64(len(out)) > limit {
		return nil, ErrEntryTooLarge
	}
	return out, nil
}

// get returns a decoder and the function that hands it back to the pool.
func (p *decompressPool) get() (*zstd.Decoder, func(), error) {
	if dec, ok := p.pool.Get().(*zstd.Decoder); ok {
		return dec, func() { p.pool.Put(dec) }, nil
	}
	dec, err := p.newDecoder()
	if err != nil {
		return nil, nil, err
	}
	return dec, func() { p.pool.Put(dec) }, nil
}

func (p *decompressPool) newDecoder() (*zstd.Decoder, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if p.maxDecoderMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxDecoderMemory))
	}
	return zstd.NewReader(nil, opts...)
}
