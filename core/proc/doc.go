// Package proc turns parsed commands into running processes.
//
// Every child is started by re-executing the shell binary under the name
// StageName. That process applies the command's file redirections to its own
// standard streams and then replaces itself with the target program, so a
// failed redirection or a missing program only ever ends the child, with
// StatusFailure. The orchestrating process sees it as an ordinary exit status.
//
// Binaries using this package must call reexec.Init first thing in main.
package proc
