// Package api exposes the fitted surrogate over a small HTTP JSON interface.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"gonum.org/v1/gonum/mat"
)

// Predictor is the serving-side view of the surrogate model.
type Predictor interface {
	Predict(mu mat.Matrix) (*mat.Dense, error)
}

// PredictRequest carries one or more query parameter vectors.
type PredictRequest struct {
	Parameters [][]float64 `json:"parameters"`
}

// PredictResponse carries the predicted snapshots, one per query vector.
type PredictResponse struct {
	Snapshots [][]float64 `json:"snapshots"`
}

type Server struct {
	predictor Predictor
	mux       *http.ServeMux
}

func NewServer(p Predictor) *Server {
	s := &Server{predictor: p, mux: http.NewServeMux()}
	s.mux.HandleFunc("/predict", s.handlePredict)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

// Handler returns the root handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	mu, err := toMatrix(req.Parameters)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pred, err := s.predictor.Predict(mu)
	if err != nil {
		log.Printf("Prediction failed: %v", err)
		http.Error(w, fmt.Sprintf("prediction failed: %v", err), http.StatusInternalServerError)
		return
	}

	rows, cols := pred.Dims()
	resp := PredictResponse{Snapshots: make([][]float64, rows)}
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		copy(row, pred.RawRowView(i))
		resp.Snapshots[i] = row
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func toMatrix(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no parameter vectors provided")
	}
	dim := len(rows[0])
	if dim == 0 {
		return nil, fmt.Errorf("empty parameter vector")
	}

	data := make([]float64, 0, len(rows)*dim)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("parameter vector %d has %d components, expected %d", i, len(row), dim)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), dim, data), nil
}
