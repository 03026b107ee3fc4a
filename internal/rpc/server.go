package rpc

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/cutflow/internal/config"
	"github.com/danielpatrickdp/cutflow/internal/cuttree"
	"github.com/danielpatrickdp/cutflow/internal/record"
	"github.com/danielpatrickdp/cutflow/internal/runner"
)

// #region server
// Server evaluates records against one shared analysis. Calls are serialized
// because the tree holds per-record state.
type Server struct {
	mu       sync.Mutex
	analysis *config.Analysis
	logger   *zap.Logger
	counter  runner.Counter
}

// NewServer wraps an analysis. logger and counter may be nil.
func NewServer(a *config.Analysis, logger *zap.Logger, counter runner.Counter) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{analysis: a, logger: logger, counter: counter}
}

// Evaluate implements EvaluatorServer. It evaluates the record under the
// requested context, fills the bound histograms and returns every cut's
// aggregated pass flag and weight in preorder.
func (s *Server) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	fields := req.GetFields()
	recVal, ok := fields["record"]
	if !ok || recVal.GetStructValue() == nil {
		return nil, status.Error(codes.InvalidArgument, "request needs a record object")
	}
	syst := fields["syst"].GetStringValue()
	rec := record.NewStruct(recVal.GetStructValue())

	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.analysis.Tree
	if !tree.Strategy().SelfResets() {
		tree.Clear()
	}
	tree.Evaluate(rec, syst, s.analysis.RecordEvents && syst == "")
	if err := tree.FillHistograms(rec, syst, 1); err != nil {
		s.logger.Warn("fill failed", zap.String("syst", syst), zap.Error(err))
		if errors.Is(err, cuttree.ErrFieldMissing) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	if s.counter != nil {
		s.counter.RecordProcessed()
	}

	var cuts []any
	tree.Walk(func(n *cuttree.Node) bool {
		cuts = append(cuts, map[string]any{
			"name":   n.Name(),
			"pass":   n.Pass(),
			"weight": n.Weight(),
		})
		return true
	})
	resp, err := structpb.NewStruct(map[string]any{"cuts": cuts})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// Analysis returns the wrapped analysis. Callers must not use it while the
// server is serving.
func (s *Server) Analysis() *config.Analysis { return s.analysis }

// #endregion server
