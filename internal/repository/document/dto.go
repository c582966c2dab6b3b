package document

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aero-edu/aero/internal/domain"
)

// Hash field names for document and chunk records.
const (
	fieldTitle      = "title"
	fieldSource     = "source"
	fieldScope      = "scope"
	fieldStatus     = "status"
	fieldTextLen    = "text_len"
	fieldFailReason = "fail_reason"
	fieldChunkCount = "chunk_count"
	fieldCreatedAt  = "created_at"
	fieldUpdatedAt  = "updated_at"

	fieldSeq    = "seq"
	fieldText   = "text"
	fieldVector = "vector"
	fieldModel  = "model"
	fieldDocID  = "doc_id"
)

func buildDocFields(doc domain.Document) map[string]string {
	return map[string]string{
		fieldTitle:      doc.Title,
		fieldSource:     string(doc.Source),
		fieldScope:      doc.Scope,
		fieldStatus:     string(doc.Status),
		fieldTextLen:    strconv.Itoa(doc.TextLen),
		fieldFailReason: doc.FailReason,
		fieldCreatedAt:  strconv.FormatInt(doc.CreatedAt.UnixMilli(), 10),
		fieldUpdatedAt:  strconv.FormatInt(doc.UpdatedAt.UnixMilli(), 10),
	}
}

func parseDocFields(id string, m map[string]string) domain.Document {
	textLen, _ := strconv.Atoi(m[fieldTextLen])
	return domain.Document{
		ID:         id,
		Title:      m[fieldTitle],
		Source:     domain.SourceType(m[fieldSource]),
		Scope:      m[fieldScope],
		TextLen:    textLen,
		Status:     domain.IngestStatus(m[fieldStatus]),
		FailReason: m[fieldFailReason],
		CreatedAt:  parseMillis(m[fieldCreatedAt]),
		UpdatedAt:  parseMillis(m[fieldUpdatedAt]),
	}
}

func buildChunkFields(c domain.Chunk) map[string]string {
	return map[string]string{
		fieldDocID:  c.DocumentID,
		fieldSeq:    strconv.Itoa(c.Seq),
		fieldText:   c.Text,
		fieldVector: vectorToBytes(c.Vector),
		fieldModel:  c.ModelVersion,
	}
}

func parseChunkFields(id string, m map[string]string) domain.Chunk {
	seq, _ := strconv.Atoi(m[fieldSeq])
	return domain.Chunk{
		ID:           id,
		DocumentID:   m[fieldDocID],
		Seq:          seq,
		Text:         m[fieldText],
		Vector:       bytesToVector(m[fieldVector]),
		ModelVersion: m[fieldModel],
	}
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// ChunkID derives the stable chunk identifier from document id and sequence.
func ChunkID(docID string, seq int) string {
	return fmt.Sprintf("%s#%04d", docID, seq)
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
