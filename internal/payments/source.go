package payments

import "context"

// SourceFor returns the provider charge reference of the creator's most
// recent completed payment. Payout channels that must link a transfer to
// its source of funds use this; an empty reference means no settled charge
// exists for the creator.
func (s *Service) SourceFor(ctx context.Context, creatorID string) (string, error) {
	list, err := s.store.ListByCreator(ctx, creatorID, 50)
	if err != nil {
		return "", err
	}
	for _, p := range list {
		if p.Status != StatusCompleted {
			continue
		}
		if p.TransferRef != "" {
			return p.TransferRef, nil
		}
		if p.ProviderRef != "" {
			return p.ProviderRef, nil
		}
	}
	return "", nil
}
