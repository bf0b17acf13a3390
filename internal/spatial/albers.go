package spatial

import "math"

// Albers is an ellipsoidal Albers equal-area conic projection.
type Albers struct {
	a, e, e2       float64
	lon0           float64
	n, c, rho0     float64
	falseE, falseN float64
}

// BCAlbers is EPSG:3005, NAD83 / BC Albers
var BCAlbers = NewAlbers(6378137, 1/298.257222101, 45, -126, 50, 58.5, 1000000, 0)

// NewAlbers sets up a projection. Angles in degrees.
func NewAlbers(a, f, lat0, lon0, lat1, lat2, falseEasting, falseNorthing float64) *Albers {
	e2 := 2*f - f*f
	p := &Albers{
		a:      a,
		e2:     e2,
		e:      math.Sqrt(e2),
		lon0:   rad(lon0),
		falseE: falseEasting,
		falseN: falseNorthing,
	}

	m1 := p.m(rad(lat1))
	m2 := p.m(rad(lat2))
	q0 := p.q(rad(lat0))
	q1 := p.q(rad(lat1))
	q2 := p.q(rad(lat2))

	if lat1 == lat2 {
		p.n = math.Sin(rad(lat1))
	} else {
		p.n = (m1*m1 - m2*m2) / (q2 - q1)
	}
	p.c = m1*m1 + p.n*q1
	p.rho0 = p.a * math.Sqrt(p.c-p.n*q0) / p.n
	return p
}

func (p *Albers) m(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-p.e2*s*s)
}

func (p *Albers) q(phi float64) float64 {
	s := math.Sin(phi)
	return (1 - p.e2) * (s/(1-p.e2*s*s) - math.Log((1-p.e*s)/(1+p.e*s))/(2*p.e))
}

// Forward projects a geographic coordinate
func (p *Albers) Forward(ll LonLat) XY {
	rho := p.a * math.Sqrt(p.c-p.n*p.q(rad(ll.Lat))) / p.n
	theta := p.n * (rad(ll.Lon) - p.lon0)
	return XY{
		X: p.falseE + rho*math.Sin(theta),
		Y: p.falseN + p.rho0 - rho*math.Cos(theta),
	}
}

// Inverse unprojects a coordinate. Latitude is found by fixed-point iteration.
func (p *Albers) Inverse(xy XY) LonLat {
	x := xy.X - p.falseE
	y := p.rho0 - (xy.Y - p.falseN)

	rho := math.Hypot(x, y)
	theta := math.Atan2(x, y)
	if p.n < 0 {
		rho = -rho
		theta = math.Atan2(-x, -y)
	}

	q := (p.c - rho*rho*p.n*p.n/(p.a*p.a)) / p.n
	phi := math.Asin(math.Max(-1, math.Min(1, q/2)))
	for i := 0; i < 15; i++ {
		s := math.Sin(phi)
		es := p.e * s
		one := 1 - es*es
		d := one * one / (2 * math.Cos(phi)) *
			(q/(1-p.e2) - s/one + math.Log((1-es)/(1+es))/(2*p.e))
		phi += d
		if math.Abs(d) < 1e-12 {
			break
		}
	}

	return LonLat{Lon: deg(p.lon0 + theta/p.n), Lat: deg(phi)}
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }
