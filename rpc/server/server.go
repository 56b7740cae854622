package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/pstore/lib/db"
	"github.com/ValentinKolb/pstore/lib/db/engines/binfile"
	"github.com/ValentinKolb/pstore/lib/db/engines/bolt"
	"github.com/ValentinKolb/pstore/lib/store"
	"github.com/ValentinKolb/pstore/lib/store/lstore"
	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/crypto"
	"github.com/ValentinKolb/pstore/rpc/serializer"
	"github.com/ValentinKolb/pstore/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new profile server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
	}
}

// RPCServer ties the store, the key pair and the transport together
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer

	sctx    *ServerContext
	metrics *serverMetrics
}

// DBFactoryFor returns the snapshot engine factory for a configured format
func DBFactoryFor(format common.SnapshotFormat) (store.DBFactory, error) {
	switch format {
	case common.SnapshotFormatBinFile, "":
		return func() db.ISnapshotDB { return binfile.NewBinFileDB() }, nil
	case common.SnapshotFormatBolt:
		return func() db.ISnapshotDB { return bolt.NewBoltDB() }, nil
	default:
		return nil, fmt.Errorf("invalid snapshot format: %s", format)
	}
}

func (s *RPCServer) init() error {
	// Key pair
	keys, err := crypto.LoadOrGenerateKeyPair(s.config.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}

	// Store
	dbFactory, err := DBFactoryFor(s.config.SnapshotFormat)
	if err != nil {
		return err
	}
	st := lstore.NewLocalStore(dbFactory)

	if s.config.DataFile != "" {
		err := st.Load(s.config.DataFile)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			Logger.Infof("No data file at %s, starting with an empty table", s.config.DataFile)
		default:
			return fmt.Errorf("failed to load data file: %w", err)
		}
	} else {
		Logger.Warningf("No data file configured, SAV requests will fail")
	}

	s.sctx = &ServerContext{
		PrivateKey: keys.Private,
		PublicKey:  keys.PublicPEM,
		Store:      st,
		DataFile:   s.config.DataFile,
		Serializer: s.serializer,
	}
	s.metrics = newServerMetrics(st)

	Logger.Infof("pstore setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()
	return nil
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(conn net.Conn) bool {
		start := time.Now()
		res, err := ServeOneRequest(conn, s.sctx)
		s.metrics.observe(res, err, start)

		if err != nil {
			Logger.Warningf("Connection from %s failed: %v", conn.RemoteAddr(), err)
			return false
		}
		Logger.Debugf("%s from %s answered with %s in %s", res.Tag, conn.RemoteAddr(), res.Code, time.Since(start))
		return res.Halt
	})
}

// Serve initializes the server and serves connections until a BYE request
// succeeds, Close is called or the process receives SIGINT/SIGTERM.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.config.MetricsEndpoint != "" {
		go s.metrics.serve(ctx, s.config.MetricsEndpoint)
	}

	// Stop on signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			Logger.Infof("Received %s, shutting down", sig)
			_ = s.transport.Close()
		case <-ctx.Done():
		}
	}()

	if err := s.transport.Listen(s.config); err != nil {
		return err
	}

	Logger.Infof("Server stopped")
	return nil
}

// Ready is closed once the server accepts connections
func (s *RPCServer) Ready() <-chan struct{} {
	return s.transport.Ready()
}

// Addr returns the address the server listens on, nil before Ready is closed
func (s *RPCServer) Addr() net.Addr {
	return s.transport.Addr()
}

// Close stops the server, Serve returns once open connections are done
func (s *RPCServer) Close() error {
	return s.transport.Close()
}
