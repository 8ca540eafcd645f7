package feed

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/banshee-data/sceneview/internal/scene"
)

// Client publishes scene updates to a feed server.
type Client struct {
	conn *grpc.ClientConn
	id   string
}

// Dial connects to a feed server without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn, id: uuid.NewString()}, nil
}

// ID returns the publisher id sent with every stream.
func (c *Client) ID() string { return c.id }

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Stream is an open Publish call.
type Stream struct {
	stream grpc.ClientStream
	sent   int
}

// OpenStream starts a Publish call on topic.
func (c *Client) OpenStream(ctx context.Context, topic string) (*Stream, error) {
	ctx = metadata.AppendToOutgoingContext(ctx,
		TopicMetadataKey, topic,
		PublisherMetadataKey, c.id,
	)
	cs, err := c.conn.NewStream(ctx, &publishStreamDesc, publishMethod)
	if err != nil {
		return nil, fmt.Errorf("open publish stream: %w", err)
	}
	return &Stream{stream: cs}, nil
}

// Send writes one update.
func (s *Stream) Send(u scene.Update) error {
	msg, err := EncodeUpdate(u)
	if err != nil {
		return err
	}
	if err := s.stream.SendMsg(msg); err != nil {
		return fmt.Errorf("send update %d: %w", s.sent, err)
	}
	s.sent++
	return nil
}

// CloseAndRecv ends the stream and waits for the server's verdict.
func (s *Stream) CloseAndRecv() error {
	if err := s.stream.CloseSend(); err != nil {
		return fmt.Errorf("close publish stream: %w", err)
	}
	if err := s.stream.RecvMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	return nil
}

// Publish sends updates on topic in a single stream.
func (c *Client) Publish(ctx context.Context, topic string, updates ...scene.Update) error {
	st, err := c.OpenStream(ctx, topic)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if err := st.Send(u); err != nil {
			// the server's status explains a broken stream
			if rerr := st.CloseAndRecv(); rerr != nil {
				return rerr
			}
			return err
		}
	}
	return st.CloseAndRecv()
}
