package syncer

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrCredentialsRequired is returned when the remote needs credentials
// and neither the configuration nor the prompter can supply them.
var ErrCredentialsRequired = errors.New("remote requires credentials")

// Credentials holds the configured authentication material.
type Credentials struct {
	// Username and Token authenticate http(s) remotes.
	Username string
	Token    string

	// SSHKeyPath points at a private key for ssh remotes. When empty,
	// ssh falls back to the running agent and default identities.
	SSHKeyPath string
}

// Prompter supplies credentials interactively when the configuration
// has none. Implementations live in the frontend; the orchestrator only
// calls it when an http(s) remote has no configured token.
type Prompter interface {
	// Credentials asks for a username and secret for the given URL.
	Credentials(url string) (username, secret string, err error)
}

// askpassScript echoes the credentials the environment carries. git
// invokes it once for the username prompt and once for the password.
const askpassScript = `#!/bin/sh
case "$1" in
  *[Uu]sername*) printf '%s\n' "$TASKIT_SYNC_USERNAME" ;;
  *) printf '%s\n' "$TASKIT_SYNC_PASSWORD" ;;
esac
`

// authEnv resolves the environment for remote operations against url.
//
// Resolution falls through: configured token, then ssh key or agent for
// ssh remotes, then the prompter for http(s) remotes. The returned
// cleanup removes any helper files and must be called after the remote
// operation finishes.
func authEnv(url string, creds Credentials, prompter Prompter) (env []string, cleanup func(), err error) {
	cleanup = func() {}

	if isSSHURL(url) {
		env = []string{"GIT_TERMINAL_PROMPT=0"}
		sshCmd := "ssh -o BatchMode=yes"
		if creds.SSHKeyPath != "" {
			if _, err := os.Stat(creds.SSHKeyPath); err != nil {
				return nil, cleanup, fmt.Errorf("ssh key %s: %w", creds.SSHKeyPath, err)
			}
			sshCmd = fmt.Sprintf("ssh -i %s -o IdentitiesOnly=yes -o BatchMode=yes", creds.SSHKeyPath)
		}
		return append(env, "GIT_SSH_COMMAND="+sshCmd), cleanup, nil
	}

	username, secret := creds.Username, creds.Token
	if secret == "" && prompter != nil {
		username, secret, err = prompter.Credentials(url)
		if err != nil {
			return nil, cleanup, fmt.Errorf("%w: %w", ErrCredentialsRequired, err)
		}
	}
	if secret == "" {
		// Anonymous access may still work for public remotes; just make
		// sure git never blocks on a terminal prompt.
		return []string{"GIT_TERMINAL_PROMPT=0"}, cleanup, nil
	}

	helper, err := writeAskpass()
	if err != nil {
		return nil, cleanup, err
	}
	cleanup = func() { os.Remove(helper) }
	env = []string{
		"GIT_TERMINAL_PROMPT=0",
		"GIT_ASKPASS=" + helper,
		"TASKIT_SYNC_USERNAME=" + username,
		"TASKIT_SYNC_PASSWORD=" + secret,
	}
	return env, cleanup, nil
}

// writeAskpass drops the askpass helper into a private temp file.
func writeAskpass() (string, error) {
	f, err := os.CreateTemp("", "taskit-askpass-*")
	if err != nil {
		return "", fmt.Errorf("create askpass helper: %w", err)
	}
	name := f.Name()
	if _, err := f.WriteString(askpassScript); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("write askpass helper: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close askpass helper: %w", err)
	}
	if err := os.Chmod(name, 0o700); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("chmod askpass helper: %w", err)
	}
	return name, nil
}

// isSSHURL reports whether the remote URL uses an ssh transport, either
// the ssh:// scheme or the scp-like user@host:path form.
func isSSHURL(url string) bool {
	if strings.HasPrefix(url, "ssh://") || strings.HasPrefix(url, "git@") {
		return true
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") ||
		strings.HasPrefix(url, "file://") {
		return false
	}
	// scp-like syntax: user@host:path with no scheme.
	at := strings.IndexByte(url, '@')
	colon := strings.IndexByte(url, ':')
	return at > 0 && colon > at
}
