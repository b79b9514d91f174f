package query

import "encoding/json"

func marshalRecord(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

func unmarshalRecord(data []byte, rec *Record) error {
	return json.Unmarshal(data, rec)
}
