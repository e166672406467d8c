package state

// Resync corrects an identified fork. No mining is allowed to take place
// while this process is running. New transactions can be placed into the
// mempool.
func (s *State) Resync() error {
	s.evHandler("state: Resync: started")
	defer s.evHandler("state: Resync: completed")

	// Don't allow mining to continue.
	s.mu.Lock()
	s.allowMining = false
	s.mu.Unlock()

	// Reset the state of the blockchain node.
	if err := s.db.Reset(); err != nil {
		s.mu.Lock()
		s.allowMining = true
		s.mu.Unlock()
		return err
	}
	s.seen.Purge()

	// Resync the state of the blockchain.
	s.resyncWG.Add(1)
	go func() {
		s.evHandler("state: Resync: started: resync")
		defer func() {
			s.mu.Lock()
			s.allowMining = true
			s.mu.Unlock()
			s.resyncWG.Done()
			s.evHandler("state: Resync: completed: resync")
		}()

		if w := s.RetrieveWorker(); w != nil {
			w.Sync()
		}
	}()

	return nil
}
