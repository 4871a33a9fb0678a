// Package model implements the dual-head regressor behind price uncertainty
// estimates.
//
// A DualHeadRegressor is a feed-forward network with at least two hidden
// layers (Dense, BatchNorm, ReLU, Dropout) and two heads on the last hidden
// layer: a linear head for the mean log price and a softplus head for the
// aleatoric variance. It is trained by minimising the Gaussian negative
// log-likelihood with Adam and early stopping on validation loss.
//
// Parameters, normalisation statistics and feature scaling are owned by the
// regressor. Inference never mutates them; a stochastic pass only differs from
// a deterministic one in that dropout masks are drawn from a caller-supplied
// generator:
//
//	p, err := m.Predict(batch, true, model.NewRand(seed))
//
// Snapshots serialise the complete state as JSON so a fitted model can be
// stored and restored bit-for-bit.
package model
