package plc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/gestureplc/internal/address"
)

// BridgeServer answers the bridge line protocol on behalf of a Backend, so a
// Bridge client can reach a device (or a simulator) through a plain TCP socket.
type BridgeServer struct {
	backend Backend
	logger  *log.Logger

	// mu serializes commands from all clients onto the backend.
	mu      sync.Mutex
	clients atomic.Int64
	nextID  atomic.Int64
	wg      sync.WaitGroup
}

// NewBridgeServer creates a server in front of backend. A nil logger uses the
// standard logger.
func NewBridgeServer(backend Backend, logger *log.Logger) *BridgeServer {
	if logger == nil {
		logger = log.Default()
	}
	return &BridgeServer{
		backend: backend,
		logger:  logger,
	}
}

// Serve accepts clients on ln until ctx is cancelled, then closes ln and waits
// for client handlers to return.
func (s *BridgeServer) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Printf("[SERVER] bridge listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			s.wg.Wait()
			return fmt.Errorf("accept bridge client: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleClient(ctx, conn)
		}()
	}
}

// Clients returns the number of connected clients.
func (s *BridgeServer) Clients() int {
	return int(s.clients.Load())
}

func (s *BridgeServer) handleClient(ctx context.Context, conn net.Conn) {
	id := s.nextID.Add(1)
	clientID := fmt.Sprintf("client#%d", id)
	s.clients.Add(1)
	s.logger.Printf("[CONNECT] %s connected from %s (active: %d)", clientID, conn.RemoteAddr(), s.clients.Load())

	defer func() {
		conn.Close()
		s.clients.Add(-1)
		s.logger.Printf("[DISCONNECT] %s disconnected (active: %d)", clientID, s.clients.Load())
	}()

	// Unblock the scanner when the server shuts down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		command := strings.TrimSpace(scanner.Text())
		if command == "" {
			continue
		}

		response := s.Process(ctx, command)
		if _, err := conn.Write([]byte(response + "\n")); err != nil {
			s.logger.Printf("[ERROR] %s write: %v", clientID, err)
			return
		}
		s.logger.Printf("[RX] %s: %s -> %s", clientID, command, response)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.logger.Printf("[ERROR] %s read: %v", clientID, err)
	}
}

// Process executes one command line and returns the response line without
// its terminating newline.
func (s *BridgeServer) Process(ctx context.Context, command string) string {
	parts := strings.Fields(command)
	if len(parts) < 4 {
		return "ERROR: Invalid command format (need: ACTION AREA BYTE BIT [VALUE])"
	}

	action := strings.ToUpper(parts[0])
	area, err := address.ParseArea(parts[1])
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	byteOffset, err := strconv.Atoi(parts[2])
	if err != nil {
		return "ERROR: Invalid number format in command"
	}
	bitOffset, err := strconv.Atoi(parts[3])
	if err != nil {
		return "ERROR: Invalid number format in command"
	}

	switch {
	case action == cmdWrite && len(parts) >= 5:
		value := parts[4] == "1" || strings.EqualFold(parts[4], "TRUE")
		return s.writeBit(ctx, area, byteOffset, bitOffset, value)
	case action == cmdRead:
		return s.readBit(ctx, area, byteOffset, bitOffset)
	default:
		return "ERROR: Unknown command (use READ or WRITE)"
	}
}

func (s *BridgeServer) resolve(area address.Area, byteOffset, bitOffset int) (address.Address, string) {
	if area != address.AreaMarker || byteOffset < 0 || byteOffset > 0xFFFF {
		return address.Address{}, fmt.Sprintf("ERROR: No tag mapped for %%%sB%d", area, byteOffset)
	}
	if bitOffset < 0 || bitOffset > address.MaxBit {
		return address.Address{}, fmt.Sprintf("ERROR: Bit offset must be 0-7, got %d", bitOffset)
	}
	return address.Address{Area: area, Byte: uint16(byteOffset), Bit: uint8(bitOffset)}, ""
}

func (s *BridgeServer) writeBit(ctx context.Context, area address.Area, byteOffset, bitOffset int, value bool) string {
	addr, errResp := s.resolve(area, byteOffset, bitOffset)
	if errResp != "" {
		return errResp
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withReconnect(ctx, func() error {
		return s.backend.WriteBit(ctx, addr, value)
	})
	if err != nil {
		return s.errorResponse(addr, err)
	}
	return respOK
}

func (s *BridgeServer) readBit(ctx context.Context, area address.Area, byteOffset, bitOffset int) string {
	addr, errResp := s.resolve(area, byteOffset, bitOffset)
	if errResp != "" {
		return errResp
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var on bool
	err := s.withReconnect(ctx, func() error {
		var err error
		on, err = s.backend.ReadBit(ctx, addr)
		return err
	})
	if err != nil {
		return s.errorResponse(addr, err)
	}
	if on {
		return respOn
	}
	return respOff
}

// withReconnect runs op and, when the backend session was lost, reopens it and
// runs op once more. Both bridge commands are idempotent. It must be called
// with mu held.
func (s *BridgeServer) withReconnect(ctx context.Context, op func() error) error {
	err := op()
	if !IsConnectionLost(err) {
		return err
	}

	s.logger.Printf("[PLC] %v; reconnecting", err)
	if cerr := s.backend.Connect(ctx); cerr != nil {
		s.logger.Printf("[PLC] Reconnect failed: %v", cerr)
		return err
	}
	return op()
}

func (s *BridgeServer) errorResponse(addr address.Address, err error) string {
	if errors.Is(err, ErrOutOfRange) {
		return fmt.Sprintf("ERROR: No tag mapped for %%%sB%d", addr.Area, addr.Byte)
	}
	return fmt.Sprintf("ERROR: %v", err)
}
