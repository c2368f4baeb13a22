// Transport links to the tracer device
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package device

import (
	"fmt"
	"io"

	"github.com/gorilla/websocket"
)

// Link is a byte stream to the device. Serial ports satisfy it directly;
// websocket connections are adapted by WSLink.
type Link interface {
	io.ReadWriteCloser
}

// WSLink adapts a websocket connection to the Link byte stream. The mock
// device listens on websocket so host and device can run as two processes
// without hardware.
type WSLink struct {
	conn *websocket.Conn
	rbuf []byte
}

// DialWS connects to a websocket device endpoint, e.g.
// ws://localhost:8139/device.
func DialWS(url string) (*WSLink, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("device: dial %s: %w", url, err)
	}
	return &WSLink{conn: conn}, nil
}

// NewWSLink wraps an accepted websocket connection.
func NewWSLink(conn *websocket.Conn) *WSLink {
	return &WSLink{conn: conn}
}

// Read implements Link. Message boundaries are not preserved; the stream is
// consumed byte-wise like a serial port.
func (l *WSLink) Read(p []byte) (int, error) {
	for len(l.rbuf) == 0 {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		l.rbuf = data
	}
	n := copy(p, l.rbuf)
	l.rbuf = l.rbuf[n:]
	return n, nil
}

// Write implements Link.
func (l *WSLink) Write(p []byte) (int, error) {
	if err := l.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements Link.
func (l *WSLink) Close() error {
	l.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return l.conn.Close()
}
