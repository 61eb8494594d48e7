package dialogue

import "hash/fnv"

// SelectVoicePair deterministically picks a voice pair for a job id. The same
// id always maps to the same pair, so a job that is retried after a failure is
// re-rendered with the voices its listeners already heard. Returns the zero
// pair when the pool is empty.
func SelectVoicePair(jobID string, pool []VoicePair) VoicePair {
	if len(pool) == 0 {
		return VoicePair{}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobID))
	return pool[h.Sum32()%uint32(len(pool))]
}
