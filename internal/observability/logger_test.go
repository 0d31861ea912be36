package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestComponentLoggerTagsFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	peerLog := ComponentLogger(base, "peer", "a")
	peerLog.Info().Msg("hello")
	line := buf.String()
	if !strings.Contains(line, `"component":"peer"`) || !strings.Contains(line, `"node":"a"`) {
		t.Fatalf("missing fields: %s", line)
	}

	buf.Reset()
	simLog := ComponentLogger(base, "sim", "")
	simLog.Info().Msg("hello")
	if strings.Contains(buf.String(), `"node"`) {
		t.Fatalf("empty node should be omitted: %s", buf.String())
	}
}
