package crpc

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"io"
	"net"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	log "github.com/sirupsen/logrus"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string                 // name of service
	rcvr   reflect.Value          // receiver of methods for the service
	typ    reflect.Type           // type of the receiver
	method map[string]*methodType // registered methods
}

type Server struct {
	listener   net.Listener
	serviceMap sync.Map // map[string]*service
	conns      sync.WaitGroup
}

func NewServer(listener net.Listener) *Server {
	return &Server{
		listener: listener,
	}
}

// Listener returns the listener the server accepts connections on.
func (srv *Server) Listener() net.Listener {
	return srv.listener
}

// Register publishes the exported methods of rcvr under the receiver's type name.
func (srv *Server) Register(rcvr any) error {
	return srv.register(rcvr, "")
}

// RegisterName is Register with an explicit service name.
func (srv *Server) RegisterName(name string, rcvr any) error {
	return srv.register(rcvr, name)
}

func (srv *Server) register(rcvr any, name string) error {
	s := new(service)
	s.typ = reflect.TypeOf(rcvr)
	s.rcvr = reflect.ValueOf(rcvr)

	sname := name
	if sname == "" {
		sname = reflect.Indirect(s.rcvr).Type().Name()
	}
	if sname == "" {
		return fmt.Errorf("crpc.Register: no service name for type %s", s.typ.String())
	}
	if name == "" && !token.IsExported(sname) {
		return fmt.Errorf("crpc.Register: type %s is not exported", sname)
	}
	s.name = sname

	s.method = suitableMethods(s.typ)
	if len(s.method) == 0 {
		return fmt.Errorf("crpc.Register: type %s has no exported methods of suitable type", sname)
	}

	if _, dup := srv.serviceMap.LoadOrStore(sname, s); dup {
		return errors.New("crpc: service already defined: " + sname)
	}

	for m := range s.method {
		log.Debugf("crpc.Register: %s.%s", sname, m)
	}

	return nil
}

func isExportedOrBuiltinType(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return token.IsExported(t.Name()) || t.PkgPath() == ""
}

// suitableMethods returns the methods of typ shaped like func(T, *R) error.
func suitableMethods(typ reflect.Type) map[string]*methodType {
	methods := make(map[string]*methodType)
	for m := 0; m < typ.NumMethod(); m++ {
		method := typ.Method(m)
		mtype := method.Type
		mname := method.Name

		if !method.IsExported() || mtype.NumIn() != 3 || mtype.NumOut() != 1 {
			continue
		}
		argType := mtype.In(1)
		if !isExportedOrBuiltinType(argType) {
			log.Debugf("crpc.Register: argument type of method %q is not exported: %q", mname, argType)
			continue
		}
		replyType := mtype.In(2)
		if replyType.Kind() != reflect.Pointer || !isExportedOrBuiltinType(replyType) {
			log.Debugf("crpc.Register: reply type of method %q must be an exported pointer: %q", mname, replyType)
			continue
		}
		if mtype.Out(0) != reflect.TypeOf((*error)(nil)).Elem() {
			continue
		}
		methods[mname] = &methodType{method: method, ArgType: argType, ReplyType: replyType}
	}
	return methods
}

// Serve accepts connections until ctx is cancelled or the listener fails.
func (srv *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := srv.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warnf("crpc.Server: error closing listener %s: %v", srv.listener.Addr(), err)
		}
	}()

	log.Infof("crpc.Server: listening on %s", srv.listener.Addr())

	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		rw, err := srv.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Infof("crpc.Server: shutting down listener %s", srv.listener.Addr())
				srv.conns.Wait()
				return nil
			default:
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				tempDelay = min(tempDelay, time.Second)
				log.Warnf("crpc.Server: accept error on %s: %v; retrying in %v", srv.listener.Addr(), err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}

			log.Errorf("crpc.Server: accept error on %s: %v", srv.listener.Addr(), err)
			return err
		}

		tempDelay = 0
		log.Debugf("crpc.Server: accepted connection from %s", rw.RemoteAddr())

		srv.conns.Add(1)
		go func() {
			defer srv.conns.Done()
			srv.ServeConn(ctx, rw)
		}()
	}
}

// ServeConn serves requests on a single connection until it is closed or ctx is done.
func (srv *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	dec := cbor.NewDecoder(conn)
	enc := cbor.NewEncoder(conn)

	for {
		req := &RequestHeader{}
		if err := dec.Decode(req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				log.Debugf("crpc.Server: connection closed: %v", err)
			} else {
				log.Errorf("crpc.Server: error decoding request header: %v", err)
			}
			return
		}

		svc, mtype, err := srv.lookup(req.Method)
		if err != nil {
			// The argument cannot be decoded without knowing its type, so the stream is lost
			log.Errorf("crpc.Server: %v", err)
			enc.Encode(&ResponseHeader{Seq: req.Seq, Err: err.Error()})
			return
		}

		var argv reflect.Value
		if mtype.ArgType.Kind() == reflect.Pointer {
			argv = reflect.New(mtype.ArgType.Elem())
		} else {
			argv = reflect.New(mtype.ArgType)
		}
		if err := dec.Decode(argv.Interface()); err != nil {
			log.Errorf("crpc.Server: error decoding argument for %s: %v", req.Method, err)
			return
		}
		if mtype.ArgType.Kind() != reflect.Pointer {
			argv = argv.Elem()
		}

		replyv := reflect.New(mtype.ReplyType.Elem())
		callErr := svc.call(mtype, argv, replyv)

		repl := &ResponseHeader{Seq: req.Seq}
		if callErr != nil {
			repl.Err = callErr.Error()
		}
		if err := enc.Encode(repl); err != nil {
			log.Errorf("crpc.Server: error encoding response header for %s: %v", req.Method, err)
			return
		}
		if callErr == nil {
			if err := enc.Encode(replyv.Interface()); err != nil {
				log.Errorf("crpc.Server: error encoding response body for %s: %v", req.Method, err)
				return
			}
		}
	}
}

func (srv *Server) lookup(serviceMethod string) (*service, *methodType, error) {
	dot := strings.LastIndex(serviceMethod, ".")
	if dot < 0 {
		return nil, nil, fmt.Errorf("service/method request ill-formed: %q", serviceMethod)
	}
	serviceName := serviceMethod[:dot]
	methodName := serviceMethod[dot+1:]

	svci, ok := srv.serviceMap.Load(serviceName)
	if !ok {
		return nil, nil, fmt.Errorf("can't find service %q", serviceName)
	}
	svc := svci.(*service)
	mtype := svc.method[methodName]
	if mtype == nil {
		return nil, nil, fmt.Errorf("can't find method %q", serviceMethod)
	}
	return svc, mtype, nil
}

func (svc *service) call(mtype *methodType, argv, replyv reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("crpc.Server: panic during %s.%s: %v", svc.name, mtype.method.Name, r)
			err = fmt.Errorf("crpc: internal server error during %s.%s", svc.name, mtype.method.Name)
		}
	}()

	returnValues := mtype.method.Func.Call([]reflect.Value{svc.rcvr, argv, replyv})
	if errInter := returnValues[0].Interface(); errInter != nil {
		return errInter.(error)
	}
	return nil
}
