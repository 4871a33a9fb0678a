// Package uncertainty turns regressor outputs into price uncertainty.
//
// EpistemicEstimator measures how much the mean prediction moves when dropout
// stays active at inference. Decomposer converts log-scale mean, aleatoric
// variance and epistemic std into currency amounts with the exact log-normal
// moments, combines them in quadrature, checks interval coverage against
// known prices and flags unpredictable high-value samples.
package uncertainty
