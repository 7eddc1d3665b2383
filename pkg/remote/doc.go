/*
Package remote executes commands and moves files on managed hosts over
SSH and SFTP.

A Session is opened per task from a SiteRecord and closed when the task
finishes. Credentials resolve in order: inline PEM material (written to
a 0600 temp file for the session's lifetime), an on-disk key path, then
password authentication. Privileged commands go through Sudo, which
feeds the password on stdin rather than the command line.

Handlers depend on the Runner interface so tests can substitute a fake
transport.
*/
package remote
