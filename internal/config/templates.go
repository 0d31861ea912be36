package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case RoleSender:
		return senderTemplate, nil
	case RoleReceiver:
		return receiverTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const senderTemplate = `name = "altnode-a"
role = "sender"
listen = "127.0.0.1:7201"
peer = "127.0.0.1:7202"
retransmit_timeout = "200ms"
max_payload_bytes = 1024
admin_addr = "127.0.0.1:7101"
cors_origins = ["http://localhost:3000"]
`

const receiverTemplate = `name = "altnode-b"
role = "receiver"
listen = "127.0.0.1:7202"
max_payload_bytes = 1024
admin_addr = "127.0.0.1:7102"
cors_origins = ["http://localhost:3000"]
`
