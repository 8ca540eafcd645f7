package feed

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "sceneview.feed.SceneFeed"

	// TopicMetadataKey carries the topic a Publish stream writes to.
	TopicMetadataKey = "x-scene-topic"
	// PublisherMetadataKey carries the publisher's id, for logs.
	PublisherMetadataKey = "x-publisher-id"

	publishMethod = "/" + ServiceName + "/Publish"
)

// Config holds configuration for the feed gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string
	// MaxMsgSize bounds a single update message
	MaxMsgSize int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "localhost:50061",
		MaxMsgSize: 16 * 1024 * 1024,
	}
}

// feedService is the handler type of the SceneFeed service.
type feedService interface {
	publish(stream grpc.ServerStream) error
}

var publishStreamDesc = grpc.StreamDesc{
	StreamName:    "Publish",
	ClientStreams: true,
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*feedService)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    publishStreamDesc.StreamName,
		ClientStreams: true,
		Handler: func(srv interface{}, stream grpc.ServerStream) error {
			return srv.(feedService).publish(stream)
		},
	}},
	Metadata: "sceneview/feed.proto",
}

// Server accepts client-streamed scene updates over gRPC and publishes
// them on its hub.
type Server struct {
	config Config
	hub    *Hub

	server   *grpc.Server
	listener net.Listener

	streams  atomic.Int32
	received atomic.Uint64
	rejected atomic.Uint64

	running atomic.Bool
	wg      sync.WaitGroup
}

// ServerStats counts ingest traffic.
type ServerStats struct {
	ActiveStreams int32
	Received      uint64
	Rejected      uint64
}

// NewServer creates a server publishing onto hub.
func NewServer(cfg Config, hub *Hub) *Server {
	if cfg.MaxMsgSize <= 0 {
		cfg.MaxMsgSize = DefaultConfig().MaxMsgSize
	}
	return &Server{config: cfg, hub: hub}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf("feed server already running")
	}
	lis, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on lis in the background.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("feed server already running")
	}
	s.listener = lis
	s.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(s.config.MaxMsgSize),
		grpc.MaxSendMsgSize(s.config.MaxMsgSize),
	)
	s.server.RegisterService(&serviceDesc, s)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logf("gRPC server listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			logf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.server != nil {
		s.server.GracefulStop()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	logf("gRPC server stopped")
}

// Stats returns ingest counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		ActiveStreams: s.streams.Load(),
		Received:      s.received.Load(),
		Rejected:      s.rejected.Load(),
	}
}

func (s *Server) publish(stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	topic := firstValue(md, TopicMetadataKey)
	if topic == "" {
		return status.Errorf(codes.InvalidArgument, "missing %s metadata", TopicMetadataKey)
	}
	publisher := firstValue(md, PublisherMetadataKey)
	if publisher == "" {
		publisher = "anonymous"
	}

	s.streams.Add(1)
	defer s.streams.Add(-1)
	logf("publisher %s streaming to %q", publisher, topic)

	count := 0
	for {
		msg := &structpb.Struct{}
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			logf("publisher %s done: %d updates on %q", publisher, count, topic)
			return stream.SendMsg(&emptypb.Empty{})
		}
		if err != nil {
			return err
		}
		if !s.running.Load() {
			return status.Error(codes.Unavailable, "feed server stopping")
		}

		u, err := DecodeUpdate(msg)
		if err != nil {
			s.rejected.Add(1)
			return status.Errorf(codes.InvalidArgument, "update %d: %v", count, err)
		}
		s.received.Add(1)
		s.hub.Publish(topic, u)
		count++
	}
}

func firstValue(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
