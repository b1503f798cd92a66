// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestAddAndWrite(t *testing.T) {
	builder, err := NewBuilder(Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	builder.Add("test", strings.NewReader("idunvovkjnreovmegihjbrqlkmfrjnb"))
	builder.Add("test2", strings.NewReader("idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"))

	if len(builder.files) != 2 {
		t.Error("incorrect number of files present")
	}

	var buf bytes.Buffer
	num, err := builder.WriteTo(&buf)
	if err != nil {
		t.Error(err)
	}
	if num != int64(buf.Len()) {
		t.Errorf("reported %d bytes written, buffer holds %d", num, buf.Len())
	}
	if !bytes.HasPrefix(buf.Bytes(), Magic[:]) {
		t.Error("archive does not start with the magic")
	}
}

func TestAddDuplicate(t *testing.T) {
	builder, err := NewBuilder(Header{Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	if err := builder.Add("same", strings.NewReader("a")); err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("same", strings.NewReader("b")); err == nil {
		t.Error("duplicate name accepted")
	}
	if builder.Len() != 1 {
		t.Error("duplicate was added to the index")
	}
}
