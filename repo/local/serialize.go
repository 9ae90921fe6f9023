package local

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
)

func serializeObject[T any](data *T) ([]byte, error) {
	if data == nil {
		return nil, errors.New("cannot serialize nil object")
	}
	buffer := &bytes.Buffer{}
	encoder := gob.NewEncoder(buffer)
	err := encoder.Encode(data)
	return buffer.Bytes(), err
}

func deserializeObject[T any](input []byte) (*T, error) {
	output := new(T)
	decoder := gob.NewDecoder(bytes.NewBuffer(input))
	err := decoder.Decode(output)
	return output, err
}

func serializeInt64(value int64) ([]byte, error) {
	return serializeObject(&value)
}

func deserializeInt64(input []byte) (int64, error) {
	output, err := deserializeObject[int64](input)
	if err != nil {
		return 0, err
	}
	return *output, nil
}

// nodeKey encodes a node id as a big-endian key so the bucket iterates in
// id order.
func nodeKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func nodeID(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key))
}

// childKey indexes a child under parent + name.
func childKey(parent int64, name string) []byte {
	return append(nodeKey(parent), []byte(name)...)
}
