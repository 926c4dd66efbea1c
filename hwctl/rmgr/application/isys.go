package application

import (
	"errors"
	"fmt"

	"hwctl-rmgr/hwctl/rmgr/domain"

	"github.com/rs/zerolog"
)

// ISYS é o contexto do input system: dono dos quatro gerenciadores de
// recurso (LUT, ibuf, DMA, SID). Criado no init do subsistema e fechado
// no uninit.
type ISYS struct {
	pools map[domain.Class]domain.ResourcePool
	log   zerolog.Logger
}

// NewISYS exige exatamente um pool por classe.
func NewISYS(log zerolog.Logger, pools ...domain.ResourcePool) (*ISYS, error) {
	s := &ISYS{pools: make(map[domain.Class]domain.ResourcePool, len(pools)), log: log}
	for _, p := range pools {
		if p == nil {
			return nil, fmt.Errorf("%w: nil pool", domain.ErrConfig)
		}
		if _, dup := s.pools[p.Class()]; dup {
			return nil, fmt.Errorf("%w: pool %s configured twice", domain.ErrConfig, p.Class())
		}
		s.pools[p.Class()] = p
	}
	for _, c := range domain.Classes {
		if _, ok := s.pools[c]; !ok {
			return nil, fmt.Errorf("%w: missing %s pool", domain.ErrConfig, c)
		}
	}
	return s, nil
}

func (s *ISYS) Pool(class domain.Class) (domain.ResourcePool, error) {
	p, ok := s.pools[class]
	if !ok {
		return nil, fmt.Errorf("%w: unknown resource class %q", domain.ErrConfig, class)
	}
	return p, nil
}

// Stats retorna as estatísticas na ordem de domain.Classes.
func (s *ISYS) Stats() []domain.PoolStats {
	out := make([]domain.PoolStats, 0, len(s.pools))
	for _, c := range domain.Classes {
		out = append(out, s.pools[c].Stats())
	}
	return out
}

// Close fecha todos os pools mesmo que algum reporte vazamento. Os erros de
// vazamento são juntados (errors.Join) e logados.
func (s *ISYS) Close() error {
	var errs []error
	for _, c := range domain.Classes {
		if err := s.pools[c].Close(); err != nil {
			s.log.Warn().Err(err).Str("class", string(c)).Msg("isys uninit with owned resources")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
