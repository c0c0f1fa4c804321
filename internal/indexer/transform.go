package indexer

import (
	"errors"
	"fmt"

	"fillScope/internal/event"
	"fillScope/internal/model"
)

// batch is the decoded output of one sub-range query.
type batch struct {
	query   model.LogQuery
	first   *model.LogRecord
	records []event.Record
	rejects []model.DecodeError
	err     error
}

// decodeBatch converts node logs into records. Logs that fail to parse or
// decode are collected as rejects and never abort the batch.
func decodeBatch(query model.LogQuery, logs []model.LogRecord, decoder event.Decoder) batch {
	out := batch{
		query:   query,
		records: make([]event.Record, 0, len(logs)),
	}
	if len(logs) > 0 {
		first := logs[0]
		out.first = &first
	}

	for _, record := range logs {
		raw, ok, err := record.ToRawLog()
		if err == nil && !ok {
			err = fmt.Errorf("%w: invalid hex in topics or data", event.ErrMalformedLog)
		}
		if err == nil {
			var rec event.Record
			rec, err = decoder.Decode(raw)
			if err == nil {
				out.records = append(out.records, rec)
				continue
			}
		}
		out.rejects = append(out.rejects, rejectFor(record, raw, err))
	}
	return out
}

func rejectFor(record model.LogRecord, raw model.RawLog, err error) model.DecodeError {
	reject := model.DecodeError{
		BlockNumber: raw.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    raw.LogIndex,
		Address:     record.Address,
		Error:       err.Error(),
	}
	if len(record.Topics) > 0 {
		reject.Topic0 = record.Topics[0]
	}
	if !errors.Is(err, event.ErrMalformedLog) {
		reject.Error = fmt.Sprintf("%s: %s", event.ErrMalformedLog, err)
	}
	return reject
}
