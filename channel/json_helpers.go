package channel

import "encoding/json"

func marshalKeys(keys []EventKey) ([]byte, error) {
	return json.Marshal(keys)
}

func unmarshalKeys(data []byte) ([]EventKey, error) {
	var keys []EventKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}
