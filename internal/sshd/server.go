// Package sshd is the host program that drives internal/session over real
// TCP connections: accept loop, per-connection read/write pump, and
// graceful shutdown. Grounded on the teacher's internal/tunnel/server.go
// (Server.ListenAndServe's deadline-polling accept loop and connection
// bookkeeping) and internal/tunnel/handler.go's per-connection handler
// shape, generalized to drive the protocol core instead of proxying
// arbitrary bytes.
package sshd

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/kmerz/awa-ssh/internal/hostkey"
	"github.com/kmerz/awa-ssh/internal/session"
	"github.com/kmerz/awa-ssh/internal/userauth"
)

// acceptPollInterval bounds how long Accept blocks before the loop
// rechecks whether it has been asked to stop, matching the teacher's
// 2-second deadline polling.
const acceptPollInterval = 2 * time.Second

// readBufferSize is the chunk size each connection reads per Read call.
const readBufferSize = 4096

// Server listens for TCP connections and drives one Session per
// connection.
type Server struct {
	ListenAddress string
	Banner        string
	HostKey       hostkey.Key
	Store         userauth.Store

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	running bool
}

// ListenAndServe blocks, accepting connections until Shutdown is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.ListenAddress)
	if err != nil {
		return fmt.Errorf("sshd: listen on %s: %w", s.ListenAddress, err)
	}
	defer ln.Close()

	s.mu.Lock()
	s.running = true
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()

	log.Printf("sshd: listening on %s", s.ListenAddress)
	for s.isRunning() {
		tcpLn, ok := ln.(*net.TCPListener)
		if ok {
			tcpLn.SetDeadline(time.Now().Add(acceptPollInterval))
		}
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !s.isRunning() {
				return nil
			}
			return fmt.Errorf("sshd: accept: %w", err)
		}
		s.addConn(conn)
		go s.handle(conn)
	}
	return nil
}

// Shutdown stops the accept loop; connections already in flight are left
// to finish on their own.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) addConn(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
	log.Printf("sshd: connection from %s opened (active: %d)", c.RemoteAddr(), len(s.conns))
}

func (s *Server) removeConn(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
	log.Printf("sshd: connection from %s closed (active: %d)", c.RemoteAddr(), len(s.conns))
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	defer s.removeConn(conn)

	sess, out, err := session.New("SSH-2.0-"+s.Banner, s.HostKey, s.Store, rand.Reader)
	if err != nil {
		log.Printf("sshd: %s: building session: %v", conn.RemoteAddr(), err)
		return
	}
	if _, err := conn.Write(out); err != nil {
		log.Printf("sshd: %s: writing banner: %v", conn.RemoteAddr(), err)
		return
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			sess, out, err = pump(sess, buf[:n])
			if len(out) > 0 {
				if _, werr := conn.Write(out); werr != nil {
					log.Printf("sshd: %s: write: %v", conn.RemoteAddr(), werr)
					return
				}
			}
			if err != nil {
				log.Printf("sshd: %s: %v", conn.RemoteAddr(), err)
				return
			}
			if sess.Auth.Phase == userauth.PhaseDone {
				log.Printf("sshd: %s: authenticated as %q", conn.RemoteAddr(), sess.Auth.User)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("sshd: %s: read: %v", conn.RemoteAddr(), err)
			}
			return
		}
	}
}

// pump feeds data into sess and drains every message it can decode,
// handling and re-encoding each one in turn, stopping at the first
// malformed input or unhandled message.
func pump(sess session.Session, data []byte) (session.Session, []byte, error) {
	sess = session.Feed(sess, data)
	var outAll []byte
	for {
		next, parsed, err := session.Poll(sess)
		if err != nil {
			return next, outAll, err
		}
		sess = next
		if parsed == nil {
			return sess, outAll, nil
		}
		next, emitted, err := session.Handle(sess, parsed)
		sess = next
		if len(emitted) > 0 {
			var chunk []byte
			var encErr error
			sess, chunk, encErr = session.EncodeMany(sess, emitted)
			if encErr != nil {
				return sess, outAll, encErr
			}
			outAll = append(outAll, chunk...)
		}
		if err != nil {
			return sess, outAll, err
		}
	}
}
